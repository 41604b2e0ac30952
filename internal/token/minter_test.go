package token

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/gridforge/marketauth/internal/store/core"
)

// fakeKeyStore implementa KeyStore con una clave RSA en memoria.
type fakeKeyStore struct {
	keyName   string
	versionID string
	priv      *rsa.PrivateKey
	listErr   error
}

func newFakeKeyStore(t *testing.T, versionID string) *fakeKeyStore {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return &fakeKeyStore{keyName: "test-signing", versionID: versionID, priv: priv}
}

func (f *fakeKeyStore) publicPEM(t *testing.T) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&f.priv.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func (f *fakeKeyStore) CurrentVersion(ctx context.Context, keyName string) (core.SigningKey, error) {
	return core.SigningKey{KeyName: f.keyName, VersionID: f.versionID, Enabled: true, IsCurrent: true}, nil
}

func (f *fakeKeyStore) ListVersions(ctx context.Context, keyName string) ([]core.SigningKey, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []core.SigningKey{{KeyName: f.keyName, VersionID: f.versionID, Enabled: true}}, nil
}

func (f *fakeKeyStore) Sign(ctx context.Context, keyName, versionID string, digest []byte) ([]byte, error) {
	return rsa.SignPKCS1v15(rand.Reader, f.priv, crypto.SHA256, digest)
}

type fakePerms struct {
	grant core.PermissionGrant
	err   error
	calls int
}

func (f *fakePerms) ResolvePermissions(ctx context.Context, externalSubject, actorID string) (core.PermissionGrant, error) {
	f.calls++
	return f.grant, f.err
}

type fakeActors struct {
	data core.ActorTokenData
	err  error
}

func (f *fakeActors) GetActorTokenData(ctx context.Context, actorID string) (core.ActorTokenData, error) {
	return f.data, f.err
}

type fakeLogins struct {
	userID string
	at     time.Time
	calls  int
}

func (f *fakeLogins) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	f.calls++
	f.userID = userID
	f.at = at
	return nil
}

// buildExternalToken arma un token externo bien formado (la firma no importa
// acá: el minter lo recibe ya validado).
func buildExternalToken(t *testing.T, sub string, nbf, exp int64) string {
	t.Helper()
	claims := jwtv5.MapClaims{"sub": sub, "nbf": nbf, "exp": exp, "iat": nbf}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	signed, err := tk.SignedString([]byte("irrelevant"))
	if err != nil {
		t.Fatalf("sign external token: %v", err)
	}
	return signed
}

func decodeSegment(t *testing.T, seg string) map[string]any {
	t.Helper()
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(seg, "="))
	if err != nil {
		t.Fatalf("decode segment: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal segment: %v", err)
	}
	return out
}

func newTestMinter(ks *fakeKeyStore, perms *fakePerms, actors *fakeActors, logins *fakeLogins, now time.Time) *Minter {
	v := NewValidator(ValidatorConfig{AllowAll: true}, nil)
	m := NewMinter(v, NewKeyRing(ks, ks.keyName), perms, actors, logins)
	m.now = func() time.Time { return now }
	return m
}

func TestMint_AssemblesClaims(t *testing.T) {
	nbf := time.Now().Add(-time.Minute).Unix()
	exp := time.Now().Add(time.Hour).Unix()
	mintedAt := time.Unix(time.Now().Unix(), 0).UTC()

	ks := newFakeKeyStore(t, "https://vault.example/keys/test-signing/abc123")
	perms := &fakePerms{grant: core.PermissionGrant{
		UserID:          "user-1",
		PermissionCodes: []string{"ActorsManage", "UsersView"},
	}}
	actors := &fakeActors{data: core.ActorTokenData{
		ActorID:     "A1",
		ActorNumber: "5790000555550",
		MarketRoles: []core.MarketRole{
			{Function: core.FunctionGridAccessProvider, GridAreaCodes: []string{"123"}},
		},
	}}
	logins := &fakeLogins{}
	m := newTestMinter(ks, perms, actors, logins, mintedAt)

	ext := buildExternalToken(t, "S1", nbf, exp)
	signed, err := m.Mint(context.Background(), ext, "A1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	parts := strings.Split(signed, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(parts))
	}

	header := decodeSegment(t, parts[0])
	if header["alg"] != "RS256" || header["typ"] != "JWT" {
		t.Errorf("unexpected header: %v", header)
	}
	// kid = último segmento de path del version identifier
	if header["kid"] != "abc123" {
		t.Errorf("kid = %v, want abc123", header["kid"])
	}

	payload := decodeSegment(t, parts[1])
	if payload["sub"] != "user-1" {
		t.Errorf("sub = %v", payload["sub"])
	}
	if payload["azp"] != "A1" {
		t.Errorf("azp = %v", payload["azp"])
	}
	roles, ok := payload["role"].([]any)
	if !ok || len(roles) != 2 {
		t.Fatalf("role = %v, want 2 entries", payload["role"])
	}
	if roles[0] != "ActorsManage" || roles[1] != "UsersView" {
		t.Errorf("role entries = %v", roles)
	}
	if payload["token"] != ext {
		t.Errorf("external token claim mismatch")
	}
	if payload["actornumber"] != "5790000555550" {
		t.Errorf("actornumber = %v", payload["actornumber"])
	}
	if payload["marketroles"] != "GridAccessProvider" {
		t.Errorf("marketroles = %v", payload["marketroles"])
	}
	if payload["gridareas"] != "123" {
		t.Errorf("gridareas = %v", payload["gridareas"])
	}
	if _, present := payload["multitenancy"]; present {
		t.Errorf("multitenancy must be absent when fas=false")
	}

	// Ventana copiada literal; iat al momento de emisión.
	if int64(payload["nbf"].(float64)) != nbf {
		t.Errorf("nbf = %v, want %d", payload["nbf"], nbf)
	}
	if int64(payload["exp"].(float64)) != exp {
		t.Errorf("exp = %v, want %d", payload["exp"], exp)
	}
	if int64(payload["iat"].(float64)) != mintedAt.Unix() {
		t.Errorf("iat = %v, want %d", payload["iat"], mintedAt.Unix())
	}

	// Login registrado sincrónicamente contra el user interno.
	if logins.calls != 1 || logins.userID != "user-1" {
		t.Errorf("login not recorded: calls=%d user=%s", logins.calls, logins.userID)
	}
}

func TestMint_SignatureOverTrimmedInput(t *testing.T) {
	ks := newFakeKeyStore(t, "v1")
	perms := &fakePerms{grant: core.PermissionGrant{UserID: "u", PermissionCodes: []string{"P"}}}
	actors := &fakeActors{data: core.ActorTokenData{ActorNumber: "1"}}
	m := newTestMinter(ks, perms, actors, &fakeLogins{}, time.Now())

	ext := buildExternalToken(t, "S1", time.Now().Unix(), time.Now().Add(time.Hour).Unix())
	signed, err := m.Mint(context.Background(), ext, "A1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	parts := strings.Split(signed, ".")
	signingInput := parts[0] + "." + parts[1]

	// El input firmado no termina en padding: se recorta antes de firmar.
	if strings.HasSuffix(signingInput, "=") {
		t.Fatalf("signing input must not end with padding: %q", signingInput)
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	digest := sha256.Sum256([]byte(signingInput))
	if err := rsa.VerifyPKCS1v15(&ks.priv.PublicKey, crypto.SHA256, digest[:], sig); err != nil {
		t.Fatalf("signature does not verify over trimmed input: %v", err)
	}
}

func TestMint_MultiTenancyClaimIffFas(t *testing.T) {
	ks := newFakeKeyStore(t, "v1")
	perms := &fakePerms{grant: core.PermissionGrant{UserID: "u", IsFas: true, PermissionCodes: []string{"P"}}}
	actors := &fakeActors{data: core.ActorTokenData{ActorNumber: "1"}}
	m := newTestMinter(ks, perms, actors, &fakeLogins{}, time.Now())

	ext := buildExternalToken(t, "S1", time.Now().Unix(), time.Now().Add(time.Hour).Unix())
	signed, err := m.Mint(context.Background(), ext, "A1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	payload := decodeSegment(t, strings.Split(signed, ".")[1])
	if payload["multitenancy"] != true {
		t.Errorf("multitenancy = %v, want true", payload["multitenancy"])
	}
}

func TestMint_GridAreasOnlyFromGridAccessProviderRole(t *testing.T) {
	ks := newFakeKeyStore(t, "v1")
	perms := &fakePerms{grant: core.PermissionGrant{UserID: "u", PermissionCodes: []string{"P"}}}
	actors := &fakeActors{data: core.ActorTokenData{
		ActorNumber: "1",
		MarketRoles: []core.MarketRole{
			// Otro rol con áreas: NO deben aparecer en el claim.
			{Function: core.FunctionEnergySupplier, GridAreaCodes: []string{"999"}},
			{Function: core.FunctionGridAccessProvider, GridAreaCodes: []string{"123", "456"}},
		},
	}}
	m := newTestMinter(ks, perms, actors, &fakeLogins{}, time.Now())

	ext := buildExternalToken(t, "S1", time.Now().Unix(), time.Now().Add(time.Hour).Unix())
	signed, err := m.Mint(context.Background(), ext, "A1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	payload := decodeSegment(t, strings.Split(signed, ".")[1])
	if payload["gridareas"] != "123,456" {
		t.Errorf("gridareas = %v, want 123,456", payload["gridareas"])
	}
	if payload["marketroles"] != "EnergySupplier,GridAccessProvider" {
		t.Errorf("marketroles = %v", payload["marketroles"])
	}
}

func TestMint_NoGridAreasWithoutGridAccessProvider(t *testing.T) {
	ks := newFakeKeyStore(t, "v1")
	perms := &fakePerms{grant: core.PermissionGrant{UserID: "u", PermissionCodes: []string{"P"}}}
	actors := &fakeActors{data: core.ActorTokenData{
		ActorNumber: "1",
		MarketRoles: []core.MarketRole{
			{Function: core.FunctionEnergySupplier, GridAreaCodes: []string{"999"}},
		},
	}}
	m := newTestMinter(ks, perms, actors, &fakeLogins{}, time.Now())

	ext := buildExternalToken(t, "S1", time.Now().Unix(), time.Now().Add(time.Hour).Unix())
	signed, err := m.Mint(context.Background(), ext, "A1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	payload := decodeSegment(t, strings.Split(signed, ".")[1])
	if _, present := payload["gridareas"]; present {
		t.Errorf("gridareas must be absent without a grid access provider role")
	}
}

func TestMint_UnauthorizedOnResolutionFailure(t *testing.T) {
	ks := newFakeKeyStore(t, "v1")

	cases := []struct {
		name   string
		perms  *fakePerms
		actors *fakeActors
	}{
		{
			name:   "permissions not found",
			perms:  &fakePerms{err: core.ErrNotFound},
			actors: &fakeActors{data: core.ActorTokenData{ActorNumber: "1"}},
		},
		{
			name:   "actor not found",
			perms:  &fakePerms{grant: core.PermissionGrant{UserID: "u", PermissionCodes: []string{"P"}}},
			actors: &fakeActors{err: core.ErrNotFound},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logins := &fakeLogins{}
			m := newTestMinter(ks, tc.perms, tc.actors, logins, time.Now())
			ext := buildExternalToken(t, "S1", time.Now().Unix(), time.Now().Add(time.Hour).Unix())
			_, err := m.Mint(context.Background(), ext, "A1")
			if !errors.Is(err, core.ErrUnauthorized) {
				t.Fatalf("err = %v, want ErrUnauthorized", err)
			}
			if logins.calls != 0 {
				t.Errorf("login must not be recorded on rejection")
			}
		})
	}
}

func TestMint_UnauthorizedOnInvalidExternalToken(t *testing.T) {
	ks := newFakeKeyStore(t, "v1")
	perms := &fakePerms{grant: core.PermissionGrant{UserID: "u", PermissionCodes: []string{"P"}}}
	actors := &fakeActors{data: core.ActorTokenData{ActorNumber: "1"}}

	// Validador real (sin bypass) sin proveedor alcanzable: todo token es rechazado.
	v := NewValidator(ValidatorConfig{Issuer: "x", Audience: "y"}, NewMetadataManager("http://127.0.0.1:0/none", nopCache{}, time.Minute))
	m := NewMinter(v, NewKeyRing(ks, ks.keyName), perms, actors, &fakeLogins{})

	ext := buildExternalToken(t, "S1", time.Now().Unix(), time.Now().Add(time.Hour).Unix())
	_, err := m.Mint(context.Background(), ext, "A1")
	if !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if perms.calls != 0 {
		t.Errorf("resolution must not run for an invalid external token")
	}
}

func TestMint_KeyStoreOutageIsNotUnauthorized(t *testing.T) {
	ks := newFakeKeyStore(t, "v1")
	outage := errors.New("vault down")
	broken := &brokenKeyStore{inner: ks, err: outage}

	perms := &fakePerms{grant: core.PermissionGrant{UserID: "u", PermissionCodes: []string{"P"}}}
	actors := &fakeActors{data: core.ActorTokenData{ActorNumber: "1"}}
	v := NewValidator(ValidatorConfig{AllowAll: true}, nil)
	m := NewMinter(v, NewKeyRing(broken, ks.keyName), perms, actors, &fakeLogins{})

	ext := buildExternalToken(t, "S1", time.Now().Unix(), time.Now().Add(time.Hour).Unix())
	_, err := m.Mint(context.Background(), ext, "A1")
	if err == nil || errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("key store outage must surface as fatal, got %v", err)
	}
	if !errors.Is(err, outage) {
		t.Fatalf("err = %v, want wrapped outage", err)
	}
}

type brokenKeyStore struct {
	inner KeyStore
	err   error
}

func (b *brokenKeyStore) CurrentVersion(ctx context.Context, keyName string) (core.SigningKey, error) {
	return core.SigningKey{}, b.err
}
func (b *brokenKeyStore) ListVersions(ctx context.Context, keyName string) ([]core.SigningKey, error) {
	return nil, b.err
}
func (b *brokenKeyStore) Sign(ctx context.Context, keyName, versionID string, digest []byte) ([]byte, error) {
	return nil, b.err
}

// nopCache es un cache.Cache que no retiene nada.
type nopCache struct{}

func (nopCache) Get(string) ([]byte, bool)         { return nil, false }
func (nopCache) Set(string, []byte, time.Duration) {}
func (nopCache) Delete(string)                     {}
