package token

import (
	"context"
	"errors"

	"github.com/dropDatabas3/authbridge/internal/autherr"
)

// Acquire aplica la política de escalación de manera uniforme:
//
//  1. Si hay cuenta cacheada, intentar AcquireSilent primero.
//  2. Si el silencioso falla con la clase recuperable "interaction
//     required", escalar exactamente UNA vez al flujo interactivo.
//  3. Cualquier otra clase de fallo (red, consentimiento denegado, app
//     deshabilitada) es terminal para el intento: se devuelve como error,
//     no se reintenta.
//
// Sin cuenta cacheada se va directo al interactivo.
func Acquire(ctx context.Context, a Acquirer, cached *Account) (*Result, error) {
	return AcquireWithHooks(ctx, a, cached, Hooks{})
}

// Hooks observa decisiones de la política sin alterarla.
type Hooks struct {
	// OnEscalate se dispara cuando el silencioso falla recuperable y la
	// política escala al flujo interactivo.
	OnEscalate func()
}

// AcquireWithHooks es Acquire con puntos de observación.
func AcquireWithHooks(ctx context.Context, a Acquirer, cached *Account, h Hooks) (*Result, error) {
	if cached != nil {
		res, err := a.AcquireSilent(ctx, *cached)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, autherr.ErrInteractionRequired) {
			return nil, err
		}
		// una única escalación; nunca loop silencioso/interactivo
		if h.OnEscalate != nil {
			h.OnEscalate()
		}
	}
	return a.AcquireInteractive(ctx)
}
