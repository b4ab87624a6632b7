package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/authbridge/internal/accounts"
	"github.com/dropDatabas3/authbridge/internal/audit"
	"github.com/dropDatabas3/authbridge/internal/autherr"
	"github.com/dropDatabas3/authbridge/internal/backend"
	"github.com/dropDatabas3/authbridge/internal/identity"
	"github.com/dropDatabas3/authbridge/internal/metrics"
	"github.com/dropDatabas3/authbridge/internal/observability/logger"
	"github.com/dropDatabas3/authbridge/internal/provider"
	"github.com/dropDatabas3/authbridge/internal/token"
	"github.com/dropDatabas3/authbridge/internal/token/google"
)

// Deps son las dependencias del coordinador. Se inyectan explícitamente:
// no hay instancia global ni efectos de import.
type Deps struct {
	Providers *provider.Set
	Acquirers map[provider.Identity]token.Acquirer
	Google    *google.Verifier // nil ⇒ solo chequeo estructural del credential
	Backend   *backend.Client
	Store     *accounts.Store
	Trail     *audit.Trail

	// ValidateTimeout acota el handshake de validación que corre en
	// background. Default: 15s.
	ValidateTimeout time.Duration
}

// Coordinator es el único escritor de AuthState. Todas las mutaciones
// pasan por apply(), que publica el snapshot a los suscriptores; el guard
// de Loading serializa logins concurrentes.
type Coordinator struct {
	deps Deps

	mu      sync.Mutex
	state   AuthState
	current token.Result // tokens vigentes de la sesión de directorio
	armed   bool         // eventos externos aceptados recién desde Initialize

	sf singleflight.Group

	subMu  sync.Mutex
	subs   []chan AuthState
	closed bool
}

// New construye el coordinador en estado Uninitialized.
func New(d Deps) *Coordinator {
	if d.ValidateTimeout == 0 {
		d.ValidateTimeout = 15 * time.Second
	}
	return &Coordinator{
		deps:  d,
		state: AuthState{Status: StatusUninitialized},
	}
}

// State devuelve el snapshot actual.
func (c *Coordinator) State() AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registra un consumidor de snapshots. El canal se cierra en
// Close; un consumidor lento pierde snapshots intermedios, nunca bloquea
// al coordinador.
func (c *Coordinator) Subscribe() <-chan AuthState {
	ch := make(chan AuthState, 8)
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.closed {
		close(ch)
		return ch
	}
	c.subs = append(c.subs, ch)
	return ch
}

// apply es el camino único de escritura: muta bajo el lock y publica.
func (c *Coordinator) apply(mut func(*AuthState)) AuthState {
	c.mu.Lock()
	mut(&c.state)
	snap := c.state
	c.mu.Unlock()
	c.publish(snap)
	return snap
}

func (c *Coordinator) publish(snap AuthState) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.closed {
		return
	}
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Close cierra los canales de suscripción y el trail.
func (c *Coordinator) Close() error {
	c.subMu.Lock()
	if !c.closed {
		c.closed = true
		for _, ch := range c.subs {
			close(ch)
		}
		c.subs = nil
	}
	c.subMu.Unlock()
	c.deps.Trail.Close()
	return nil
}

// Initialize corre una sola vez al arranque: drena el resultado de un
// redirect recién completado y, si no hay ninguno, intenta la renovación
// silenciosa de la cuenta cacheada. Termina con Loading=false exactamente
// una vez, tome la rama que tome. Nunca abre un flujo interactivo.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Status != StatusUninitialized {
		c.mu.Unlock()
		return nil
	}
	c.state.Status = StatusInitializing
	c.state.Loading = true
	// a partir de acá los eventos externos entran por el mismo camino de
	// escritura; antes de Initialize se descartan
	c.armed = true
	snap := c.state
	c.mu.Unlock()
	c.publish(snap)

	settled := false
	settle := func(user *identity.User, err error) {
		if settled {
			return
		}
		settled = true
		c.apply(func(s *AuthState) {
			s.Loading = false
			s.User = user
			if user != nil {
				s.Status = StatusAuthenticated
				s.Err = nil
			} else {
				s.Status = StatusUnauthenticated
				s.Err = err
			}
		})
	}

	// 1) redirect pendiente, siempre primero
	for _, p := range []provider.Identity{provider.Microsoft} {
		acq, ok := c.deps.Acquirers[p]
		if !ok {
			continue
		}
		res, err := acq.CompleteRedirect(ctx)
		if err != nil {
			logger.From(ctx).Warn("drenaje de redirect falló",
				logger.Op("initialize"), logger.Provider(string(p)), logger.Err(err))
			continue
		}
		if res == nil {
			continue
		}
		user, err := c.adoptDirectoryResult(ctx, p, res)
		if err != nil {
			settle(nil, err)
			return nil
		}
		metrics.RecordLogin(string(p), "ok")
		c.deps.Trail.Record(ctx, audit.KindLoginSucceeded, p, user.ID, "redirect completado")
		settle(user, nil)
		return nil
	}

	// 2) cuenta cacheada → silencioso, sin escalación en el arranque
	rec, err := c.deps.Store.LoadAccount(ctx)
	if err != nil {
		logger.From(ctx).Warn("no se pudo leer la cuenta cacheada", logger.Err(err))
	}
	if rec != nil {
		acq, ok := c.deps.Acquirers[rec.Provider]
		if ok {
			res, err := acq.AcquireSilent(ctx, rec.Account)
			switch {
			case err == nil:
				user, aerr := c.adoptDirectoryResult(ctx, rec.Provider, res)
				if aerr != nil {
					settle(nil, aerr)
					return nil
				}
				metrics.RecordSilentRefresh(string(rec.Provider), "ok")
				c.deps.Trail.Record(ctx, audit.KindSilentRefreshed, rec.Provider, user.ID, "arranque")
				settle(user, nil)
				return nil
			case autherr.IsInteractionRequired(err):
				// sin sesión silenciosa posible: arranca deslogueado, sin
				// popup y sin error visible
				metrics.RecordSilentRefresh(string(rec.Provider), "interaction_required")
			default:
				metrics.RecordSilentRefresh(string(rec.Provider), "error")
				logger.From(ctx).Warn("renovación silenciosa de arranque falló",
					logger.Op("initialize"), logger.Provider(string(rec.Provider)), logger.Err(err))
			}
		}
	}

	settle(nil, nil)
	return nil
}

// Login abre el flujo del provider indicado. Con Loading activo es un
// no-op (serialización por guard); con el provider deshabilitado falla con
// la clase configuración sin tocar la red.
func (c *Coordinator) Login(ctx context.Context, p provider.Identity) error {
	c.mu.Lock()
	if c.state.Loading {
		c.mu.Unlock()
		return nil
	}
	if err := c.requireEnabledLocked(p); err != nil {
		snap := c.state
		c.mu.Unlock()
		c.publish(snap)
		metrics.RecordLogin(string(p), "config")
		return err
	}
	acq, ok := c.deps.Acquirers[p]
	if !ok {
		err := autherr.Configuration(string(p), "provider sin flujo de adquisición")
		c.state.Err = err
		snap := c.state
		c.mu.Unlock()
		c.publish(snap)
		metrics.RecordLogin(string(p), "config")
		return err
	}
	c.state.Status = StatusAuthenticating
	c.state.Loading = true
	snap := c.state
	c.mu.Unlock()
	c.publish(snap)

	c.deps.Trail.Record(ctx, audit.KindLoginStarted, p, "", "")

	var cached *token.Account
	if rec, err := c.deps.Store.LoadAccount(ctx); err == nil && rec != nil && rec.Provider == p {
		cached = &rec.Account
	}

	res, err := token.AcquireWithHooks(ctx, acq, cached, token.Hooks{
		OnEscalate: func() {
			metrics.RecordEscalation(string(p))
			c.deps.Trail.Record(ctx, audit.KindEscalated, p, "", "")
		},
	})
	if err != nil {
		c.failLogin(ctx, p, err)
		return err
	}

	user, err := c.adoptDirectoryResult(ctx, p, res)
	if err != nil {
		c.failLogin(ctx, p, err)
		return err
	}

	metrics.RecordLogin(string(p), "ok")
	c.deps.Trail.Record(ctx, audit.KindLoginSucceeded, p, user.ID, "")
	c.apply(func(s *AuthState) {
		s.Status = StatusAuthenticated
		s.User = user
		s.Loading = false
		s.Err = nil
	})
	c.validateAsync(p, user.AccessToken)
	return nil
}

// LoginWithCredential es la entrada para providers cuyo SDK entrega el
// credential sin ciclo de popup/redirect (el credential de Google llega ya
// emitido). Mismo contrato que Login.
func (c *Coordinator) LoginWithCredential(ctx context.Context, credential string) error {
	p := provider.Google
	c.mu.Lock()
	if c.state.Loading {
		c.mu.Unlock()
		return nil
	}
	if err := c.requireEnabledLocked(p); err != nil {
		snap := c.state
		c.mu.Unlock()
		c.publish(snap)
		metrics.RecordLogin(string(p), "config")
		return err
	}
	c.state.Status = StatusAuthenticating
	c.state.Loading = true
	snap := c.state
	c.mu.Unlock()
	c.publish(snap)

	c.deps.Trail.Record(ctx, audit.KindLoginStarted, p, "", "credential externo")

	if c.deps.Google != nil {
		if _, err := c.deps.Google.Verify(ctx, credential); err != nil {
			c.failLogin(ctx, p, err)
			return err
		}
	}
	user, err := identity.FromIdentityToken(credential)
	if err != nil {
		perr := autherr.Provider(string(p), "credential no normalizable", err)
		c.failLogin(ctx, p, perr)
		return perr
	}

	metrics.RecordLogin(string(p), "ok")
	c.deps.Trail.Record(ctx, audit.KindLoginSucceeded, p, user.ID, "")
	c.apply(func(s *AuthState) {
		s.Status = StatusAuthenticated
		s.User = user
		s.Loading = false
		s.Err = nil
	})
	c.validateAsync(p, user.AccessToken)
	return nil
}

// LoginWithPassword autentica usuario y contraseña contra el backend y
// normaliza el principal emitido. El handshake de validación no aplica: el
// token lo emitió el propio backend.
func (c *Coordinator) LoginWithPassword(ctx context.Context, username, password string) error {
	p := provider.Traditional
	c.mu.Lock()
	if c.state.Loading {
		c.mu.Unlock()
		return nil
	}
	if err := c.requireEnabledLocked(p); err != nil {
		snap := c.state
		c.mu.Unlock()
		c.publish(snap)
		metrics.RecordLogin(string(p), "config")
		return err
	}
	if c.deps.Backend == nil {
		err := autherr.Configuration(string(p), "backend sin configurar")
		c.state.Err = err
		snap := c.state
		c.mu.Unlock()
		c.publish(snap)
		metrics.RecordLogin(string(p), "config")
		return err
	}
	c.state.Status = StatusAuthenticating
	c.state.Loading = true
	snap := c.state
	c.mu.Unlock()
	c.publish(snap)

	c.deps.Trail.Record(ctx, audit.KindLoginStarted, p, "", "")

	principal, accessToken, err := c.deps.Backend.LoginPassword(ctx, username, password)
	if err != nil {
		c.failLogin(ctx, p, err)
		return err
	}
	user, err := identity.FromPrincipal(principal, accessToken)
	if err != nil {
		perr := autherr.Provider(string(p), "principal no normalizable", err)
		c.failLogin(ctx, p, perr)
		return perr
	}

	metrics.RecordLogin(string(p), "ok")
	c.deps.Trail.Record(ctx, audit.KindLoginSucceeded, p, user.ID, "")
	c.apply(func(s *AuthState) {
		s.Status = StatusAuthenticated
		s.User = user
		s.Loading = false
		s.Err = nil
	})
	return nil
}

// Logout es determinista: el usuario local se limpia incondicionalmente
// antes del sign-out del provider, así la aplicación jamás observa una
// sesión vieja después de invocarlo. El sign-out remoto es best effort.
func (c *Coordinator) Logout(ctx context.Context) {
	c.mu.Lock()
	user := c.state.User
	c.current = token.Result{}
	c.state.User = nil
	c.state.Status = StatusUnauthenticated
	c.state.Loading = false
	c.state.Err = nil
	snap := c.state
	c.mu.Unlock()
	c.publish(snap)

	if user == nil {
		return
	}
	if err := c.deps.Store.ClearAccount(ctx); err != nil {
		logger.From(ctx).Warn("no se pudo limpiar la cuenta cacheada", logger.Err(err))
	}
	c.deps.Trail.Record(ctx, audit.KindLogout, user.Provider, user.ID, "")

	if acq, ok := c.deps.Acquirers[user.Provider]; ok {
		if err := acq.SignOut(ctx); err != nil {
			logger.From(ctx).Warn("sign-out del provider falló",
				logger.Op("logout"), logger.Provider(string(user.Provider)), logger.Err(err))
		}
	}
}

// AccessToken devuelve el token vigente de la sesión; si venció intenta la
// renovación silenciosa y, de fallar recuperable, una única escalación
// interactiva. Sin sesión devuelve "" sin intentar nada. Los refreshes
// concurrentes se colapsan en un solo vuelo.
func (c *Coordinator) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	user := c.state.User
	cur := c.current
	c.mu.Unlock()

	if user == nil {
		return "", nil
	}
	if cur.Valid() {
		return cur.AccessToken, nil
	}
	acq, ok := c.deps.Acquirers[user.Provider]
	if !ok {
		// sin flujo de renovación el token es el credential mismo
		return user.AccessToken, nil
	}

	v, err, _ := c.sf.Do("access_token", func() (any, error) {
		c.mu.Lock()
		cur := c.current
		acct := cur.Account
		p := user.Provider
		c.mu.Unlock()
		if cur.Valid() {
			return cur.AccessToken, nil
		}

		res, err := token.AcquireWithHooks(ctx, acq, &acct, token.Hooks{
			OnEscalate: func() {
				metrics.RecordEscalation(string(p))
				c.deps.Trail.Record(ctx, audit.KindEscalated, p, user.ID, "renovación")
			},
		})
		if err != nil {
			metrics.RecordSilentRefresh(string(p), "error")
			return "", err
		}
		metrics.RecordSilentRefresh(string(p), "ok")
		if _, aerr := c.adoptDirectoryResult(ctx, p, res); aerr != nil {
			return "", aerr
		}
		return res.AccessToken, nil
	})
	if err != nil {
		// misma política de propagación: el fallo queda en el estado, el
		// caller recibe el error tipado
		c.apply(func(s *AuthState) { s.Err = err })
		return "", err
	}
	return v.(string), nil
}

// ClearError limpia el último error visible.
func (c *Coordinator) ClearError() {
	c.apply(func(s *AuthState) { s.Err = nil })
}

// NotifyResult entrega una adquisición completada fuera de banda (el
// callback HTTP redimió un código de un arranque anterior del flujo).
// Antes de Initialize los eventos se descartan: el ordenamiento garantiza
// que ninguna actualización le gane a la lectura inicial del estado.
func (c *Coordinator) NotifyResult(ctx context.Context, p provider.Identity, res *token.Result) {
	c.mu.Lock()
	armed := c.armed
	c.mu.Unlock()
	if !armed || res == nil {
		logger.From(ctx).Warn("evento de cuenta descartado antes de Initialize", logger.Provider(string(p)))
		return
	}

	user, err := c.adoptDirectoryResult(ctx, p, res)
	if err != nil {
		c.apply(func(s *AuthState) { s.Err = err })
		return
	}
	metrics.RecordLogin(string(p), "ok")
	c.deps.Trail.Record(ctx, audit.KindLoginSucceeded, p, user.ID, "callback")
	c.apply(func(s *AuthState) {
		s.Status = StatusAuthenticated
		s.User = user
		s.Loading = false
		s.Err = nil
	})
	c.validateAsync(p, user.AccessToken)
}

// requireEnabledLocked valida la capacidad del provider con mu tomado.
// Deshabilitado no es una falla del sistema: es una capacidad ausente que
// el usuario tiene que conocer por su nombre.
func (c *Coordinator) requireEnabledLocked(p provider.Identity) error {
	rc, ok := c.deps.Providers.Get(p)
	if ok && rc.Enabled {
		return nil
	}
	msg := "provider deshabilitado"
	if ok && len(rc.Missing) > 0 {
		msg = fmt.Sprintf("provider sin configurar: faltan %s", strings.Join(rc.Missing, ", "))
	}
	err := autherr.Configuration(string(p), msg)
	c.state.Err = err
	return err
}

// adoptDirectoryResult normaliza el resultado del directorio, lo vuelve la
// sesión vigente y persiste la cuenta sellada.
func (c *Coordinator) adoptDirectoryResult(ctx context.Context, p provider.Identity, res *token.Result) (*identity.User, error) {
	user, err := identity.FromDirectoryAccount(identity.DirectoryAccount{
		LocalID:  res.Account.Subject,
		Username: res.Account.Username,
		Name:     res.Account.Name,
	}, res.AccessToken)
	if err != nil {
		return nil, autherr.Provider(string(p), "cuenta del provider no normalizable", err)
	}
	user.Provider = p

	c.mu.Lock()
	c.current = *res
	c.mu.Unlock()

	if err := c.deps.Store.SaveAccount(ctx, accounts.Record{Provider: p, Account: res.Account}); err != nil {
		logger.From(ctx).Warn("no se pudo persistir la cuenta", logger.Provider(string(p)), logger.Err(err))
	}
	logger.From(ctx).Info("cuenta del directorio adoptada",
		logger.Provider(string(p)),
		logger.UserID(user.ID),
		logger.Email(user.Email),
	)
	return user, nil
}

// failLogin convierte el fallo en estado: el error queda visible, Loading
// vuelve a false y la sesión no cambia. Ningún fallo se propaga como pánico
// ni deja Loading colgado.
func (c *Coordinator) failLogin(ctx context.Context, p provider.Identity, err error) {
	metrics.RecordLogin(string(p), "error")
	c.deps.Trail.Record(ctx, audit.KindLoginFailed, p, "", err.Error())
	c.apply(func(s *AuthState) {
		s.Loading = false
		s.Err = err
		if s.User == nil {
			s.Status = StatusUnauthenticated
		} else {
			s.Status = StatusAuthenticated
		}
	})
}

// validateAsync dispara el handshake de validación sin atar el estado a su
// resultado: un backend caído se loguea y la sesión local sigue viva.
func (c *Coordinator) validateAsync(p provider.Identity, accessToken string) {
	if c.deps.Backend == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.deps.ValidateTimeout)
		defer cancel()
		if err := c.deps.Backend.Validate(ctx, accessToken, p); err != nil {
			metrics.RecordValidationFailure(string(p))
			// ctx puede estar vencido justamente por este fallo; la
			// escritura de auditoría necesita su propio plazo
			actx, acancel := auditCtx(ctx, 5*time.Second)
			defer acancel()
			c.deps.Trail.Record(actx, audit.KindValidationFailed, p, "", err.Error())
		}
	}()
}

// auditCtx desacopla una escritura de auditoría del plazo de la operación
// que la gatilló: conserva los valores del contexto (logger incluido) pero
// no su cancelación ni su deadline.
func auditCtx(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), d)
}
