package audit

import (
	"context"
	"testing"

	"github.com/dropDatabas3/authbridge/internal/provider"
)

func TestTrailSoloLogNoExplota(t *testing.T) {
	trail, err := New(context.Background(), Config{Driver: "log"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer trail.Close()

	// sin pool: Record solo loguea
	trail.Record(context.Background(), KindLoginSucceeded, provider.Microsoft, "oid-1", "")
}

func TestTrailNilEsSeguro(t *testing.T) {
	var trail *Trail
	trail.Record(context.Background(), KindLogout, provider.Google, "", "apagando")
	trail.Close()
}

func TestPostgresSinDSNCaeALog(t *testing.T) {
	trail, err := New(context.Background(), Config{Driver: "postgres", DSN: ""})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if trail.pool != nil {
		t.Fatal("sin DSN no debería abrir pool")
	}
}
