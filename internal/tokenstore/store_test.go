package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

// exercise checks the Store contract shared by every backend.
func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, s.Set(ctx, "tok1"))
	got, err = s.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "tok1", got)

	require.NoError(t, s.Set(ctx, "tok2"))
	got, _ = s.Get(ctx)
	require.Equal(t, "tok2", got)

	require.NoError(t, s.Clear(ctx))
	got, err = s.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, s.Clear(ctx), "clear must be idempotent")
}

func TestExpiresAt(t *testing.T) {
	t.Parallel()

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, ok := ExpiresAt(signed(t, exp))
	require.True(t, ok)
	require.True(t, got.Equal(exp))

	_, ok = ExpiresAt("opaque-token")
	require.False(t, ok)
}

func TestMemory(t *testing.T) {
	t.Parallel()
	exercise(t, NewMemory())
}

func TestFile_Plain(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "lms", "token.json")
	exercise(t, NewFile(path, "http://a/api", nil))

	require.NoError(t, NewFile(path, "http://a/api", nil).Set(context.Background(), "visible"))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "visible")

	st, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestFile_OriginsAreIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "token.json")
	a := NewFile(path, "http://a/api", nil)
	b := NewFile(path, "http://b/api", nil)

	require.NoError(t, a.Set(ctx, "ta"))
	require.NoError(t, b.Set(ctx, "tb"))
	require.NoError(t, a.Clear(ctx))

	got, _ := a.Get(ctx)
	require.Empty(t, got)
	got, _ = b.Get(ctx)
	require.Equal(t, "tb", got)
}

func TestFile_Sealed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "token.json")
	s := NewFile(path, "http://a/api", []byte("pass"))

	tok := signed(t, time.Now().Add(time.Hour))
	require.NoError(t, s.Set(ctx, tok))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.False(t, strings.Contains(string(raw), tok), "token must not be stored in clear")
	require.Contains(t, string(raw), "expires_at")

	got, err := s.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, tok, got)

	_, err = NewFile(path, "http://a/api", nil).Get(ctx)
	require.Error(t, err)
	_, err = NewFile(path, "http://a/api", []byte("wrong")).Get(ctx)
	require.Error(t, err)
}

func TestFile_CorruptFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := NewFile(path, "o", nil).Get(context.Background())
	require.Error(t, err)
}

func TestRedis(t *testing.T) {
	t.Parallel()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	exercise(t, NewRedis(rdb, "", "http://a/api"))

	s := NewRedis(rdb, "t:", "http://a/api")
	require.NoError(t, s.Set(context.Background(), "opaque"))
	require.True(t, mr.Exists("t:http://a/api"))
	require.Zero(t, mr.TTL("t:http://a/api"), "opaque tokens never expire in redis")

	require.NoError(t, s.Set(context.Background(), signed(t, time.Now().Add(10*time.Minute))))
	ttl := mr.TTL("t:http://a/api")
	require.Greater(t, ttl, 9*time.Minute)

	mr.FastForward(11 * time.Minute)
	got, err := s.Get(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestPostgres(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	ctx := context.Background()
	s := NewPostgresWithQuerier(mock, "http://a/api")

	mock.ExpectQuery(`SELECT access_token FROM client_tokens WHERE origin=\$1`).
		WithArgs("http://a/api").
		WillReturnError(pgx.ErrNoRows)
	got, err := s.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, got)

	mock.ExpectExec(`INSERT INTO client_tokens \(origin, access_token, expires_at, updated_at\)`).
		WithArgs("http://a/api", "tok1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.Set(ctx, "tok1"))

	mock.ExpectQuery(`SELECT access_token FROM client_tokens WHERE origin=\$1`).
		WithArgs("http://a/api").
		WillReturnRows(pgxmock.NewRows([]string{"access_token"}).AddRow("tok1"))
	got, err = s.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "tok1", got)

	mock.ExpectExec(`DELETE FROM client_tokens WHERE origin=\$1`).
		WithArgs("http://a/api").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, s.Clear(ctx))

	require.NoError(t, mock.ExpectationsWereMet())
}
