package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"creditpool/native/lending"
)

const validOwner = "0x000000000000000000000000000000000000000a"

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeFile(t, "config.yaml", `
listen: " :6000 "
owner: "`+validOwner+`"
tls:
  allow_insecure: true
auth:
  hmac_secret: " 0123456789abcdef0123 "
  issuer: creditpool
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":6000" {
		t.Fatalf("unexpected listen address: %q", cfg.ListenAddress)
	}
	if cfg.DataDir != defaultDataDir {
		t.Fatalf("unexpected data dir: %q", cfg.DataDir)
	}
	if cfg.Journal.Path != filepath.Join(defaultDataDir, "journal.db") {
		t.Fatalf("unexpected journal path: %q", cfg.Journal.Path)
	}
	if cfg.Auth.HMACSecret != "0123456789abcdef0123" {
		t.Fatalf("expected trimmed secret")
	}
	if cfg.Auth.AdminScope != defaultAdminScope {
		t.Fatalf("unexpected admin scope: %q", cfg.Auth.AdminScope)
	}
	if cfg.RateLimit.RequestsPerMinute != defaultRatePerMinute || cfg.RateLimit.Burst != defaultBurst {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("unexpected request timeout: %v", cfg.RequestTimeout)
	}
	if cfg.OwnerAddress() != common.HexToAddress(validOwner) {
		t.Fatalf("unexpected owner")
	}
	if cfg.EngineAddressOrDefault() != DefaultEngineAddress {
		t.Fatalf("expected default engine address")
	}
}

func TestLoadConfigFullDocument(t *testing.T) {
	path := writeFile(t, "config.yaml", `
listen: "127.0.0.1:9000"
data_dir: /var/lib/lendingd
engine_params: lending.toml
owner: "`+validOwner+`"
engine_address: "0x00000000000000000000000000000000000000e0"
request_timeout: 3s
tls:
  allow_insecure: true
auth:
  hmac_secret: "0123456789abcdef"
  audience: lending
  admin_scope: ops
  clock_skew: 30s
cors:
  allowed_origins: [" https://app.example ", ""]
rate_limit:
  requests_per_minute: 600
  burst: 5
telemetry:
  endpoint: otel:4318
  metrics: true
logging:
  level: debug
  file: /var/log/lendingd.log
  max_size_mb: 50
journal:
  path: /var/lib/lendingd/events.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RequestTimeout != 3*time.Second || cfg.Auth.ClockSkew != 30*time.Second {
		t.Fatalf("durations not decoded: %v %v", cfg.RequestTimeout, cfg.Auth.ClockSkew)
	}
	if cfg.Auth.AdminScope != "ops" || cfg.RateLimit.Burst != 5 {
		t.Fatalf("unexpected values: %+v", cfg)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "https://app.example" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Journal.Path != "/var/lib/lendingd/events.db" {
		t.Fatalf("unexpected journal path %q", cfg.Journal.Path)
	}
	if cfg.EngineAddressOrDefault() != common.HexToAddress("0xe0") {
		t.Fatalf("unexpected engine address")
	}
	if !cfg.Telemetry.Metrics || cfg.Telemetry.Traces {
		t.Fatalf("unexpected telemetry flags: %+v", cfg.Telemetry)
	}
}

func TestLoadConfigRejections(t *testing.T) {
	cases := map[string]string{
		"missing owner": `
tls: {allow_insecure: true}
auth: {hmac_secret: "0123456789abcdef"}
`,
		"short secret": `
owner: "` + validOwner + `"
tls: {allow_insecure: true}
auth: {hmac_secret: "short"}
`,
		"tls required": `
owner: "` + validOwner + `"
auth: {hmac_secret: "0123456789abcdef"}
`,
		"half tls": `
owner: "` + validOwner + `"
tls: {cert: server.crt}
auth: {hmac_secret: "0123456789abcdef"}
`,
		"unknown field": `
owner: "` + validOwner + `"
tls: {allow_insecure: true}
auth: {hmac_secret: "0123456789abcdef"}
grpc: true
`,
		"sample ratio": `
owner: "` + validOwner + `"
tls: {allow_insecure: true}
auth: {hmac_secret: "0123456789abcdef"}
telemetry: {sample_ratio: 1.5}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, "config.yaml", doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestLoadEngineParams(t *testing.T) {
	path := writeFile(t, "lending.toml", `
LoanDurationSeconds = 86400
ProtocolFeeBps = 100
BlacklistThreshold = "5000"

[[CollateralTiers]]
MinScore = 500
RatioBps = 12000

[[Assets]]
Address = "native"
MaxBorrowLimit = "1000000"
`)
	cfg, err := LoadEngineParams(path)
	if err != nil {
		t.Fatalf("load engine params: %v", err)
	}
	if cfg.LoanDurationSeconds != 86400 || cfg.ProtocolFeeBps != 100 {
		t.Fatalf("unexpected values: %+v", cfg)
	}
	if cfg.SecondsPerYear != lending.DefaultSecondsPerYear {
		t.Fatalf("expected defaults to be filled")
	}
	if len(cfg.CollateralTiers) != 1 || len(cfg.Assets) != 1 {
		t.Fatalf("unexpected tables: %+v", cfg)
	}

	defaults, err := LoadEngineParams("")
	if err != nil {
		t.Fatalf("default params: %v", err)
	}
	if defaults.ProtocolFeeBps != 50 {
		t.Fatalf("unexpected default fee %d", defaults.ProtocolFeeBps)
	}
}

func TestLoadEngineParamsKeepsDefaultsForOmittedKeys(t *testing.T) {
	path := writeFile(t, "lending.toml", `
[[Assets]]
Address = "native"
MaxBorrowLimit = "1000"
`)
	cfg, err := LoadEngineParams(path)
	if err != nil {
		t.Fatalf("load engine params: %v", err)
	}
	defaults := lending.DefaultConfig()
	if cfg.ProtocolFeeBps != defaults.ProtocolFeeBps ||
		cfg.DiscountPer100Bps != defaults.DiscountPer100Bps ||
		cfg.LiquidationPenalty != defaults.LiquidationPenalty {
		t.Fatalf("omitted keys lost their defaults: fee=%d discount=%d penalty=%d",
			cfg.ProtocolFeeBps, cfg.DiscountPer100Bps, cfg.LiquidationPenalty)
	}
	if !reflect.DeepEqual(cfg.CollateralTiers, defaults.CollateralTiers) || !reflect.DeepEqual(cfg.LateSteps, defaults.LateSteps) {
		t.Fatalf("omitted tables lost their defaults: %+v", cfg)
	}
	if len(cfg.Assets) != 1 || cfg.Assets[0].MaxBorrowLimit != "1000" {
		t.Fatalf("unexpected assets: %+v", cfg.Assets)
	}

	zeroFee := writeFile(t, "lending.toml", "ProtocolFeeBps = 0\nLiquidationPenalty = 0\n")
	cfg, err = LoadEngineParams(zeroFee)
	if err != nil {
		t.Fatalf("load engine params: %v", err)
	}
	if cfg.ProtocolFeeBps != 0 || cfg.LiquidationPenalty != 0 || cfg.DiscountPer100Bps != defaults.DiscountPer100Bps {
		t.Fatalf("explicit zero not honoured: %+v", cfg)
	}
}

func TestLoadEngineParamsRejections(t *testing.T) {
	unknown := writeFile(t, "lending.toml", "LoanDuration = 10\n")
	if _, err := LoadEngineParams(unknown); err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
	lowRatio := writeFile(t, "lending.toml", "DefaultCollateralRatioBps = 200\n")
	if _, err := LoadEngineParams(lowRatio); err == nil {
		t.Fatalf("expected ratio validation error")
	}
}

func TestShippedConfigsLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "config.yaml"))
	if err != nil {
		t.Fatalf("load shipped config: %v", err)
	}
	params, err := LoadEngineParams(filepath.Join("..", "lending.toml"))
	if err != nil {
		t.Fatalf("load shipped params: %v", err)
	}
	defaults := lending.DefaultConfig()
	if params.LoanDurationSeconds != defaults.LoanDurationSeconds || len(params.CollateralTiers) != len(defaults.CollateralTiers) {
		t.Fatalf("shipped params drifted from defaults: %+v", params)
	}
	if cfg.Auth.AdminScope != "admin" || len(params.Assets) != 1 {
		t.Fatalf("unexpected shipped config: %+v %+v", cfg.Auth, params.Assets)
	}
}
