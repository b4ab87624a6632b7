package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once     sync.Once
	instance *zap.Logger
)

// Init construye el singleton. Idempotente: las llamadas posteriores no
// pisan la primera configuración. Va primero en main, antes de loguear.
func Init(cfg Config) {
	once.Do(func() { instance = build(cfg) })
}

// L devuelve el singleton, inicializándolo en modo dev si nadie llamó a
// Init (el caso de los tests).
func L() *zap.Logger {
	if instance == nil {
		Init(Config{Env: "dev", Level: "info"})
	}
	return instance
}

// Named devuelve un logger con nombre de componente.
func Named(name string) *zap.Logger { return L().Named(name) }

// With devuelve un logger con campos fijos adicionales.
func With(fields ...zap.Field) *zap.Logger { return L().With(fields...) }

// Sync drena los buffers pendientes. Con defer en main.
func Sync() error {
	if instance == nil {
		return nil
	}
	return instance.Sync()
}
