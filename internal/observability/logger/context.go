package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// ToContext devuelve un contexto que transporta l. Los middlewares lo usan
// para que todo lo que corra dentro de un request loguee con sus campos
// (request id, método, path) sin enhebrar el logger a mano.
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From recupera el logger del contexto, o el singleton cuando no hay uno.
// Nunca devuelve nil: siempre es seguro loguear con el resultado.
func From(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return L()
}
