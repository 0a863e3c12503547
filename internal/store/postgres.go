package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/fault"
	"github.com/your-org/faceid/internal/models"
)

// ErrIdentityNotFound is returned by operations targeting an identity that
// does not exist.
var ErrIdentityNotFound = errors.New("identity not found")

// ErrSearchUnavailable is returned by SearchEmbeddings when encryption-at-rest
// is enabled and no plaintext search column is maintained.
var ErrSearchUnavailable = errors.New("vector search unavailable with encryption enabled")

// Store is the encrypted-at-rest embedding store. All multi-statement
// mutations run inside a transaction: the corpus can never hold an identity
// with zero embeddings or an embedding with a dangling owner.
type Store struct {
	pool   *pgxpool.Pool
	cipher *cipherBox

	hashNames    bool
	auditEnabled bool
	auditActor   string
}

// New connects, applies pending migrations, and configures security gates.
func New(ctx context.Context, dbCfg config.DatabaseConfig, secCfg config.SecurityConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dbCfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(dbCfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fault.Wrap(fault.Database, "connect to postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fault.Wrap(fault.Database, "ping postgres", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fault.Wrap(fault.Database, "migrate schema", err)
	}

	box, err := newCipherBox(secCfg.EncryptionKey)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("configure encryption: %w", err)
	}

	return &Store{
		pool:         pool,
		cipher:       box,
		hashNames:    secCfg.HashNames,
		auditEnabled: secCfg.AuditEnabled,
		auditActor:   secCfg.AuditActor,
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EncryptionEnabled reports whether embedding payloads are sealed at rest.
func (s *Store) EncryptionEnabled() bool { return s.cipher.enabled() }

// StoreEmbedding resolves or creates the identity by name and appends one
// embedding sample, atomically. The first sample for an identity is marked
// primary. Empty names and empty vectors fail with no partial writes.
func (s *Store) StoreEmbedding(ctx context.Context, name string, vec []float32, quality float32) error {
	if name == "" {
		return fault.New(fault.Database, "identity name is empty")
	}
	if len(vec) == 0 {
		return fault.New(fault.Database, "embedding vector is empty")
	}

	blob, err := s.cipher.seal(encodeVector(vec))
	if err != nil {
		return fault.Wrap(fault.Database, "seal embedding", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fault.Wrap(fault.Database, "begin enroll", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	identityID, created, err := s.resolveIdentity(ctx, tx, name)
	if err != nil {
		return err
	}

	embID := uuid.New()
	isPrimary := created

	var vecCol *pgvector.Vector
	if !s.cipher.enabled() {
		v := pgvector.NewVector(vec)
		vecCol = &v
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO face_embeddings (id, identity_id, embedding, embedding_size, quality, is_primary, embedding_vec)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		embID, identityID, blob, len(vec), quality, isPrimary, vecCol)
	if err != nil {
		return fault.Wrap(fault.Database, "insert embedding", err)
	}

	if s.auditEnabled {
		op := "enroll_sample"
		if created {
			op = "enroll_identity"
		}
		if err := s.auditInsert(ctx, tx, op, "face_embeddings", embID.String(),
			nil, auditPayload{"identity": name, "embedding_size": len(vec)}); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fault.Wrap(fault.Database, "commit enroll", err)
	}
	return nil
}

// resolveIdentity finds or creates the identity row inside the enroll
// transaction. Returns the id and whether the row was created.
func (s *Store) resolveIdentity(ctx context.Context, tx pgx.Tx, name string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM identities WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, fault.Wrap(fault.Database, "lookup identity", err)
	}

	id = uuid.New()
	var nh string
	if s.hashNames {
		nh = hashName(name)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO identities (id, name, name_hash) VALUES ($1, $2, $3)`,
		id, name, nh)
	if err != nil {
		return uuid.Nil, false, fault.Wrap(fault.Database, "create identity", err)
	}
	return id, true, nil
}

// GetEmbeddings returns every stored embedding for the identity, ordered by
// creation time. Unknown identities yield an empty slice, not an error.
func (s *Store) GetEmbeddings(ctx context.Context, name string) ([][]float32, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT fe.embedding, fe.embedding_size
		 FROM face_embeddings fe
		 JOIN identities i ON i.id = fe.identity_id
		 WHERE i.name = $1
		 ORDER BY fe.created_at, fe.id`, name)
	if err != nil {
		return nil, fault.Wrap(fault.Database, "query embeddings", err)
	}
	defer rows.Close()

	var vecs [][]float32
	for rows.Next() {
		var blob []byte
		var size int
		if err := rows.Scan(&blob, &size); err != nil {
			return nil, fault.Wrap(fault.Database, "scan embedding", err)
		}
		vec, err := s.decodePayload(blob, size)
		if err != nil {
			return nil, err
		}
		vecs = append(vecs, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.Database, "iterate embeddings", err)
	}
	return vecs, nil
}

// AllEmbeddings returns the full corpus for building the matching index.
func (s *Store) AllEmbeddings(ctx context.Context) ([]models.LabeledEmbedding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT i.name, fe.embedding, fe.embedding_size
		 FROM face_embeddings fe
		 JOIN identities i ON i.id = fe.identity_id
		 WHERE i.active
		 ORDER BY fe.created_at, fe.id`)
	if err != nil {
		return nil, fault.Wrap(fault.Database, "query corpus", err)
	}
	defer rows.Close()

	var corpus []models.LabeledEmbedding
	for rows.Next() {
		var name string
		var blob []byte
		var size int
		if err := rows.Scan(&name, &blob, &size); err != nil {
			return nil, fault.Wrap(fault.Database, "scan corpus row", err)
		}
		vec, err := s.decodePayload(blob, size)
		if err != nil {
			return nil, err
		}
		corpus = append(corpus, models.LabeledEmbedding{Name: name, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.Database, "iterate corpus", err)
	}
	return corpus, nil
}

func (s *Store) decodePayload(blob []byte, size int) ([]float32, error) {
	plain, err := s.cipher.open(blob)
	if err != nil {
		return nil, fault.Wrap(fault.Database, "unseal embedding", err)
	}
	vec, err := decodeVector(plain, size)
	if err != nil {
		return nil, fault.Wrap(fault.Database, "decode embedding", err)
	}
	return vec, nil
}

// ListIdentities returns all enrolled identity names, oldest first.
func (s *Store) ListIdentities(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name FROM identities WHERE active ORDER BY created_at, name`)
	if err != nil {
		return nil, fault.Wrap(fault.Database, "list identities", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fault.Wrap(fault.Database, "scan identity name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.Database, "iterate identities", err)
	}
	return names, nil
}

// GetIdentity returns the full identity record by name.
func (s *Store) GetIdentity(ctx context.Context, name string) (*models.Identity, error) {
	ident := &models.Identity{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, name_hash, active, recognition_count, last_recognized_at, created_at, updated_at
		 FROM identities WHERE name = $1`, name,
	).Scan(&ident.ID, &ident.Name, &ident.NameHash, &ident.Active,
		&ident.RecognitionCount, &ident.LastRecognizedAt, &ident.CreatedAt, &ident.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fault.Wrap(fault.Database, "get identity", ErrIdentityNotFound)
		}
		return nil, fault.Wrap(fault.Database, "get identity", err)
	}
	return ident, nil
}

// DeleteIdentity removes the identity and all owned embeddings in one
// transaction, recording a single audit entry. Deleting an unknown identity
// fails and leaves the corpus unchanged.
func (s *Store) DeleteIdentity(ctx context.Context, name string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fault.Wrap(fault.Database, "begin delete", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id uuid.UUID
	var embCount int
	err = tx.QueryRow(ctx,
		`SELECT i.id, COUNT(fe.id)
		 FROM identities i
		 LEFT JOIN face_embeddings fe ON fe.identity_id = i.id
		 WHERE i.name = $1
		 GROUP BY i.id`, name,
	).Scan(&id, &embCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fault.Wrap(fault.Database, "delete identity", ErrIdentityNotFound)
		}
		return fault.Wrap(fault.Database, "lookup identity for delete", err)
	}

	// Embeddings first, then the owner. ON DELETE CASCADE would cover this,
	// but the explicit order keeps the delete auditable and the invariant
	// visible in one place.
	if _, err := tx.Exec(ctx,
		`DELETE FROM face_embeddings WHERE identity_id = $1`, id); err != nil {
		return fault.Wrap(fault.Database, "delete embeddings", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM identities WHERE id = $1`, id); err != nil {
		return fault.Wrap(fault.Database, "delete identity row", err)
	}

	if s.auditEnabled {
		if err := s.auditInsert(ctx, tx, "delete_identity", "identities", id.String(),
			auditPayload{"identity": name, "embeddings": embCount}, nil); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fault.Wrap(fault.Database, "commit delete", err)
	}
	return nil
}

// RecordRecognition bumps the lifetime counter and refreshes timestamps
// after a successful recognition.
func (s *Store) RecordRecognition(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE identities
		 SET recognition_count = recognition_count + 1,
		     last_recognized_at = NOW(),
		     updated_at = NOW()
		 WHERE name = $1`, name)
	if err != nil {
		return fault.Wrap(fault.Database, "record recognition", err)
	}
	if tag.RowsAffected() == 0 {
		return fault.Wrap(fault.Database, "record recognition", ErrIdentityNotFound)
	}
	return nil
}

// Stats returns identity and embedding counts.
func (s *Store) Stats(ctx context.Context) (models.StoreStats, error) {
	var st models.StoreStats
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM identities), (SELECT COUNT(*) FROM face_embeddings)`,
	).Scan(&st.IdentityCount, &st.EmbeddingCount)
	if err != nil {
		return st, fault.Wrap(fault.Database, "query stats", err)
	}
	return st, nil
}

// SearchMatch is one result of a database-side similarity search.
type SearchMatch struct {
	Name  string
	Score float64
}

// SearchEmbeddings runs a cosine-similarity search over the plaintext
// pgvector column. Only available when encryption-at-rest is disabled; the
// in-memory index is the primary match path either way.
func (s *Store) SearchEmbeddings(ctx context.Context, vec []float32, threshold float64, limit int) ([]SearchMatch, error) {
	if s.cipher.enabled() {
		return nil, fault.Wrap(fault.Database, "search embeddings", ErrSearchUnavailable)
	}
	if limit <= 0 {
		limit = 5
	}
	v := pgvector.NewVector(vec)

	rows, err := s.pool.Query(ctx,
		`SELECT i.name, 1 - (fe.embedding_vec <=> $1) AS score
		 FROM face_embeddings fe
		 JOIN identities i ON i.id = fe.identity_id
		 WHERE fe.embedding_vec IS NOT NULL
		   AND 1 - (fe.embedding_vec <=> $1) >= $2
		 ORDER BY fe.embedding_vec <=> $1
		 LIMIT $3`, v, threshold, limit)
	if err != nil {
		return nil, fault.Wrap(fault.Database, "search embeddings", err)
	}
	defer rows.Close()

	var matches []SearchMatch
	for rows.Next() {
		var m SearchMatch
		if err := rows.Scan(&m.Name, &m.Score); err != nil {
			return nil, fault.Wrap(fault.Database, "scan search match", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.Database, "iterate search matches", err)
	}
	return matches, nil
}
