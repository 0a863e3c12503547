package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/your-org/faceid/internal/config"
)

// TestStoreIntegration runs the full embedding lifecycle against a real
// Postgres container. It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Explicitly check for Docker availability; testcontainers can panic
	// when the socket is missing, so probe inside a recover.
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Fatalf("Docker not available, cannot run integration test: %v", err)
	}

	// pgvector image so migration 4 can create the extension.
	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("pgvector/pgvector:pg16"),
		postgres.WithDatabase("faceid_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	dbCfg := config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		Name:     "faceid_test",
		User:     "user",
		Password: "password",
		MaxConns: 4,
	}
	secCfg := config.SecurityConfig{
		EncryptionKey: testKey,
		AuditEnabled:  true,
		AuditActor:    "test",
	}

	s, err := New(ctx, dbCfg, secCfg)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close()

	if !s.EncryptionEnabled() {
		t.Fatal("expected encryption to be enabled")
	}

	vecAlice := make([]float32, 512)
	vecAlice[0] = 1.0
	vecBob := make([]float32, 512)
	vecBob[1] = 1.0

	// Roundtrip: what comes back equals what went in.
	if err := s.StoreEmbedding(ctx, "alice", vecAlice, 0.9); err != nil {
		t.Fatalf("StoreEmbedding: %v", err)
	}
	got, err := s.GetEmbeddings(ctx, "alice")
	if err != nil {
		t.Fatalf("GetEmbeddings: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 embedding, got %d", len(got))
	}
	for i := range vecAlice {
		if got[0][i] != vecAlice[i] {
			t.Fatalf("element %d: expected %f, got %f", i, vecAlice[i], got[0][i])
		}
	}

	// Multiple samples accumulate under one identity.
	if err := s.StoreEmbedding(ctx, "alice", vecBob, 0.8); err != nil {
		t.Fatalf("StoreEmbedding second sample: %v", err)
	}
	if err := s.StoreEmbedding(ctx, "bob", vecBob, 0.7); err != nil {
		t.Fatalf("StoreEmbedding bob: %v", err)
	}

	names, err := s.ListIdentities(ctx)
	if err != nil {
		t.Fatalf("ListIdentities: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 identities, got %d: %v", len(names), names)
	}

	all, err := s.AllEmbeddings(ctx)
	if err != nil {
		t.Fatalf("AllEmbeddings: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 labeled embeddings, got %d", len(all))
	}

	// Recognition bookkeeping.
	if err := s.RecordRecognition(ctx, "alice"); err != nil {
		t.Fatalf("RecordRecognition: %v", err)
	}
	ident, err := s.GetIdentity(ctx, "alice")
	if err != nil {
		t.Fatalf("GetIdentity: %v", err)
	}
	if ident.RecognitionCount != 1 {
		t.Errorf("expected recognition count 1, got %d", ident.RecognitionCount)
	}
	if ident.LastRecognizedAt == nil {
		t.Error("expected last_recognized_at to be set")
	}
	if err := s.RecordRecognition(ctx, "ghost"); !errors.Is(err, ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.IdentityCount != 2 || stats.EmbeddingCount != 3 {
		t.Errorf("expected 2 identities / 3 embeddings, got %d / %d",
			stats.IdentityCount, stats.EmbeddingCount)
	}

	// Re-applying the migration list against a populated schema is a no-op:
	// nothing re-runs, and existing data survives.
	if err := Migrate(ctx, s.pool); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	stats, err = s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats after re-migration: %v", err)
	}
	if stats.IdentityCount != 2 || stats.EmbeddingCount != 3 {
		t.Errorf("data lost after re-migration: %d identities / %d embeddings",
			stats.IdentityCount, stats.EmbeddingCount)
	}
	survivors, err := s.GetEmbeddings(ctx, "alice")
	if err != nil {
		t.Fatalf("GetEmbeddings after re-migration: %v", err)
	}
	if len(survivors) != 2 {
		t.Errorf("expected alice's 2 samples to survive re-migration, got %d", len(survivors))
	}

	// Vector search is off while embeddings are sealed.
	if _, err := s.SearchEmbeddings(ctx, vecAlice, 0.4, 5); !errors.Is(err, ErrSearchUnavailable) {
		t.Errorf("expected ErrSearchUnavailable, got %v", err)
	}

	// Delete removes the identity and every sample under it.
	if err := s.DeleteIdentity(ctx, "alice"); err != nil {
		t.Fatalf("DeleteIdentity: %v", err)
	}
	gone, err := s.GetEmbeddings(ctx, "alice")
	if err != nil {
		t.Fatalf("GetEmbeddings after delete: %v", err)
	}
	if len(gone) != 0 {
		t.Errorf("expected no embeddings after delete, got %d", len(gone))
	}

	// Deleting a missing identity fails and leaves the corpus untouched.
	if err := s.DeleteIdentity(ctx, "nobody"); !errors.Is(err, ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}
	stats, err = s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats after delete: %v", err)
	}
	if stats.IdentityCount != 1 || stats.EmbeddingCount != 1 {
		t.Errorf("expected 1 identity / 1 embedding, got %d / %d",
			stats.IdentityCount, stats.EmbeddingCount)
	}

	// Every mutation above left an audit row.
	entries, err := s.AuditTrail(ctx, 50)
	if err != nil {
		t.Fatalf("AuditTrail: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected audit entries")
	}
	ops := map[string]bool{}
	for _, e := range entries {
		ops[e.Operation] = true
		if e.Actor != "test" {
			t.Errorf("expected actor test, got %q", e.Actor)
		}
	}
	for _, op := range []string{"enroll_identity", "enroll_sample", "delete_identity"} {
		if !ops[op] {
			t.Errorf("expected %q operation in audit trail, have %v", op, ops)
		}
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
