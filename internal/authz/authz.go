// Package authz guards the operator surface: bcrypt-hashed ops API keys
// for authentication and a casbin RBAC model for per-route authorization.
package authz

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidKey = errors.New("authz: invalid ops API key")
	ErrKeyRevoked = errors.New("authz: ops API key revoked")
)

const keyPrefix = "ops_"

// rbacModel is keyed on (role, path, method) with keyMatch2 so policies
// can use path templates like /ops/pg-configurations/:id.
const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

func NewEnforcer(db *gorm.DB) (*casbin.Enforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}

	m, err := casbinmodel.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}

	enforcer, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}

	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}

	return enforcer, nil
}

func seedPolicies(e *casbin.Enforcer) error {
	policies := [][]string{
		{RoleOpsAdmin, "/ops/*", "*"},
		{RoleOpsViewer, "/ops/*", "GET"},
	}
	for _, p := range policies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return err
		}
	}
	return e.SavePolicy()
}

type KeyService struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewKeyService(db *gorm.DB, genID *snowflake.Node) *KeyService {
	return &KeyService{db: db, genID: genID}
}

// Issue mints a new ops key and returns the one plaintext form the
// caller will ever see.
func (s *KeyService) Issue(ctx context.Context, name, role string) (string, *OpsAPIKey, error) {
	id := s.genID.Generate()

	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}

	key := &OpsAPIKey{
		ID:         id,
		Name:       name,
		Role:       role,
		SecretHash: string(hash),
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return "", nil, err
	}

	return fmt.Sprintf("%s%s.%s", keyPrefix, id.String(), secret), key, nil
}

// Verify resolves a presented key to its record. Lookup is by embedded
// key ID, then the secret is checked against the stored bcrypt hash.
func (s *KeyService) Verify(ctx context.Context, presented string) (*OpsAPIKey, error) {
	rest, ok := strings.CutPrefix(presented, keyPrefix)
	if !ok {
		return nil, ErrInvalidKey
	}
	idStr, secret, ok := strings.Cut(rest, ".")
	if !ok || secret == "" {
		return nil, ErrInvalidKey
	}
	id, err := snowflake.ParseString(idStr)
	if err != nil {
		return nil, ErrInvalidKey
	}

	var key OpsAPIKey
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, err
	}
	if !key.Active {
		return nil, ErrKeyRevoked
	}

	if bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)) != nil {
		return nil, ErrInvalidKey
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&OpsAPIKey{}).
		Where("id = ?", key.ID).
		Update("last_used_at", now).Error; err == nil {
		key.LastUsedAt = &now
	}

	return &key, nil
}

func (s *KeyService) Revoke(ctx context.Context, id snowflake.ID) error {
	result := s.db.WithContext(ctx).Model(&OpsAPIKey{}).
		Where("id = ?", id).
		Update("active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidKey
	}
	return nil
}

var Module = fx.Module("authz",
	fx.Provide(NewEnforcer),
	fx.Provide(NewKeyService),
)
