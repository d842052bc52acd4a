package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/sosappend/internal/bggoexpr"
	"github.com/specialistvlad/sosappend/internal/bggohcl"
	"github.com/specialistvlad/sosappend/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Store kinds accepted by result_store and module_store.
const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"
	StoreS3     = "s3"
	StoreGCS    = "gcs"
)

var storeKinds = []string{StoreMemory, StoreBolt, StoreS3, StoreGCS}

// Defaults applied to omitted settings.
const (
	DefaultIndexKey        = "index/${continent}.json"
	DefaultContributionKey = "${module}/${run_type}/${continent}.json"
	DefaultConcurrency     = 4
	DefaultMaxAttempts     = 5
	DefaultDanglingAfter   = 10 * time.Minute
	DefaultNotifyEvent     = "sos_committed"
	DefaultNotifyTimeout   = 15 * time.Second
	DefaultResultPath      = "data/results.db"
	DefaultModulePath      = "data/modules.db"
)

// Store locates a blob store.
type Store struct {
	Kind      string
	Bucket    string
	Endpoint  string
	Region    string
	UseSSL    bool
	Anonymous bool
	// Path is the database file of a bolt store.
	Path string
	// Prefix roots every key read from or written to the store.
	Prefix string
}

// Commit tunes the optimistic commit loop.
type Commit struct {
	// MaxAttempts bounds full read-merge-commit passes after version conflicts.
	MaxAttempts   int
	DanglingAfter time.Duration

	RetryInitial     time.Duration
	RetryMaxInterval time.Duration
	RetryMaxElapsed  time.Duration
	RetryMax         uint64
}

// Notify configures the socket.io commit announcement.
type Notify struct {
	URL       string
	Namespace string
	Event     string
	// AckEvent, when set, is awaited from the server before disconnecting.
	AckEvent string
	Timeout  time.Duration
	Insecure bool
}

// Config is a loaded job file.
type Config struct {
	ResultStore     Store
	ModuleStore     Store
	IndexKey        Template
	ContributionKey Template
	Concurrency     int
	Commit          Commit
	// Notify is nil when no notify block is present.
	Notify     *Notify
	Attributes map[string]string
}

// Default is the configuration used without a job file.
func Default() *Config {
	return &Config{
		ResultStore:     Store{Kind: StoreBolt, Path: DefaultResultPath},
		ModuleStore:     Store{Kind: StoreBolt, Path: DefaultModulePath},
		IndexKey:        MustTemplate(DefaultIndexKey),
		ContributionKey: MustTemplate(DefaultContributionKey),
		Concurrency:     DefaultConcurrency,
		Commit: Commit{
			MaxAttempts:   DefaultMaxAttempts,
			DanglingAfter: DefaultDanglingAfter,
		},
		Attributes: map[string]string{},
	}
}

type storeBody struct {
	Bucket    string `hcl:"bucket,optional"`
	Endpoint  string `hcl:"endpoint,optional"`
	Region    string `hcl:"region,optional"`
	UseSSL    *bool  `hcl:"use_ssl,optional"`
	Anonymous bool   `hcl:"anonymous,optional"`
	Path      string `hcl:"path,optional"`
	Prefix    string `hcl:"prefix,optional"`
}

type indexBlock struct {
	Key hcl.Expression `hcl:"key,optional"`
}

func (b *indexBlock) Expressions() []hcl.Expression { return []hcl.Expression{b.Key} }

type contributionBlock struct {
	Key         hcl.Expression `hcl:"key,optional"`
	Concurrency *int           `hcl:"concurrency,optional"`
}

func (b *contributionBlock) Expressions() []hcl.Expression { return []hcl.Expression{b.Key} }

type commitBlock struct {
	MaxAttempts      *int    `hcl:"max_attempts,optional"`
	DanglingAfter    string  `hcl:"dangling_after,optional"`
	RetryInitial     string  `hcl:"retry_initial,optional"`
	RetryMaxInterval string  `hcl:"retry_max_interval,optional"`
	RetryMaxElapsed  string  `hcl:"retry_max_elapsed,optional"`
	RetryMax         *uint64 `hcl:"retry_max,optional"`
}

func (b *commitBlock) Expressions() []hcl.Expression { return nil }

type notifyBlock struct {
	URL       string `hcl:"url"`
	Namespace string `hcl:"namespace,optional"`
	Event     string `hcl:"event,optional"`
	AckEvent  string `hcl:"ack_event,optional"`
	Timeout   string `hcl:"timeout,optional"`
	Insecure  bool   `hcl:"insecure_skip_verify,optional"`
}

func (b *notifyBlock) Expressions() []hcl.Expression { return nil }

var rootSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{{Name: "attributes"}},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "result_store", LabelNames: []string{"kind"}},
		{Type: "module_store", LabelNames: []string{"kind"}},
		{Type: "index"},
		{Type: "contribution"},
		{Type: "commit"},
		{Type: "notify"},
	},
}

// Load reads the job file at path. An empty path yields Default().
func Load(ctx context.Context, path string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	if path == "" {
		logger.Debug("No job file given, using defaults.")
		return Default(), nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	cfg, err := Parse(src, path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Job file loaded.", "path", path,
		"result_store", cfg.ResultStore.Kind, "module_store", cfg.ModuleStore.Kind,
		"notify", cfg.Notify != nil)
	return cfg, nil
}

// Parse decodes job file source. filename is used in diagnostics only.
func Parse(src []byte, filename string) (*Config, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse job file %s: %w", filename, diags)
	}
	content, diags := file.Body.Content(rootSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode job file %s: %w", filename, diags)
	}

	cfg := Default()
	for _, step := range []func(*hcl.BodyContent, *Config) hcl.Diagnostics{
		decodeStores,
		decodeIndex,
		decodeContribution,
		decodeCommit,
		decodeNotify,
		decodeAttributes,
	} {
		diags = append(diags, step(content, cfg)...)
	}
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid job file %s: %w", filename, diags)
	}
	return cfg, nil
}

func decodeStores(content *hcl.BodyContent, cfg *Config) hcl.Diagnostics {
	var diags hcl.Diagnostics
	for name, target := range map[string]*Store{
		"result_store": &cfg.ResultStore,
		"module_store": &cfg.ModuleStore,
	} {
		block, d := bggohcl.FindUniqueBlock(content.Blocks, name)
		diags = append(diags, d...)
		if block == nil {
			continue
		}
		store, d := decodeStore(block)
		diags = append(diags, d...)
		if !d.HasErrors() {
			*target = store
		}
	}
	return diags
}

func decodeStore(block *hcl.Block) (Store, hcl.Diagnostics) {
	kind, diags := bggohcl.KindLabel(block, storeKinds...)
	if diags.HasErrors() {
		return Store{}, diags
	}
	var body storeBody
	if diags := gohcl.DecodeBody(block.Body, nil, &body); diags.HasErrors() {
		return Store{}, diags
	}
	s := Store{
		Kind:      kind,
		Bucket:    body.Bucket,
		Endpoint:  body.Endpoint,
		Region:    body.Region,
		UseSSL:    true,
		Anonymous: body.Anonymous,
		Path:      body.Path,
		Prefix:    body.Prefix,
	}
	if body.UseSSL != nil {
		s.UseSSL = *body.UseSSL
	}

	required := map[string]string{StoreBolt: "path", StoreS3: "bucket", StoreGCS: "bucket"}
	missing := required[kind]
	if (missing == "path" && s.Path == "") || (missing == "bucket" && s.Bucket == "") {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Missing required argument",
			Detail:   fmt.Sprintf("A %q %s needs %q.", kind, block.Type, missing),
			Subject:  &block.DefRange,
		})
	}
	return s, diags
}

func decodeIndex(content *hcl.BodyContent, cfg *Config) hcl.Diagnostics {
	block, _, diags := bggoexpr.ParseBlock[*indexBlock](content.Blocks, "index")
	if block == nil || isAbsent(block.Key) {
		return diags
	}
	diags = append(diags, bggoexpr.CheckTemplate(block.Key, "continent")...)
	cfg.IndexKey = Template{expr: block.Key}
	return diags
}

func decodeContribution(content *hcl.BodyContent, cfg *Config) hcl.Diagnostics {
	block, _, diags := bggoexpr.ParseBlock[*contributionBlock](content.Blocks, "contribution")
	if block == nil {
		return diags
	}
	if !isAbsent(block.Key) {
		diags = append(diags, bggoexpr.CheckTemplate(block.Key, "module", "continent", "run_type")...)
		cfg.ContributionKey = Template{expr: block.Key}
	}
	if block.Concurrency != nil {
		if *block.Concurrency < 1 {
			diags = append(diags, invalid("contribution", "concurrency must be at least 1"))
		} else {
			cfg.Concurrency = *block.Concurrency
		}
	}
	return diags
}

func decodeCommit(content *hcl.BodyContent, cfg *Config) hcl.Diagnostics {
	block, _, diags := bggoexpr.ParseBlock[*commitBlock](content.Blocks, "commit")
	if block == nil {
		return diags
	}
	if block.MaxAttempts != nil {
		if *block.MaxAttempts < 1 {
			diags = append(diags, invalid("commit", "max_attempts must be at least 1"))
		} else {
			cfg.Commit.MaxAttempts = *block.MaxAttempts
		}
	}
	if block.RetryMax != nil {
		cfg.Commit.RetryMax = *block.RetryMax
	}
	for _, d := range []struct {
		name   string
		src    string
		target *time.Duration
	}{
		{"dangling_after", block.DanglingAfter, &cfg.Commit.DanglingAfter},
		{"retry_initial", block.RetryInitial, &cfg.Commit.RetryInitial},
		{"retry_max_interval", block.RetryMaxInterval, &cfg.Commit.RetryMaxInterval},
		{"retry_max_elapsed", block.RetryMaxElapsed, &cfg.Commit.RetryMaxElapsed},
	} {
		if d.src == "" {
			continue
		}
		v, err := time.ParseDuration(d.src)
		if err != nil || v <= 0 {
			diags = append(diags, invalid("commit", fmt.Sprintf("%s: %q is not a positive duration", d.name, d.src)))
			continue
		}
		*d.target = v
	}
	return diags
}

func decodeNotify(content *hcl.BodyContent, cfg *Config) hcl.Diagnostics {
	block, _, diags := bggoexpr.ParseBlock[*notifyBlock](content.Blocks, "notify")
	if block == nil {
		return diags
	}
	n := &Notify{
		URL:       block.URL,
		Namespace: block.Namespace,
		Event:     block.Event,
		AckEvent:  block.AckEvent,
		Timeout:   DefaultNotifyTimeout,
		Insecure:  block.Insecure,
	}
	if n.Namespace == "" {
		n.Namespace = "/"
	}
	if n.Event == "" {
		n.Event = DefaultNotifyEvent
	}
	if block.Timeout != "" {
		v, err := time.ParseDuration(block.Timeout)
		if err != nil || v <= 0 {
			diags = append(diags, invalid("notify", fmt.Sprintf("timeout: %q is not a positive duration", block.Timeout)))
		} else {
			n.Timeout = v
		}
	}
	cfg.Notify = n
	return diags
}

func decodeAttributes(content *hcl.BodyContent, cfg *Config) hcl.Diagnostics {
	attr, ok := content.Attributes["attributes"]
	if !ok {
		return nil
	}
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return diags
	}
	val, err := convert.Convert(val, cty.Map(cty.String))
	if err != nil || val.IsNull() {
		return hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid attributes",
			Detail:   "attributes must be a map of strings.",
			Subject:  attr.Expr.Range().Ptr(),
		}}
	}
	for k, v := range val.AsValueMap() {
		if v.IsNull() {
			continue
		}
		cfg.Attributes[k] = v.AsString()
	}
	return nil
}

func invalid(block, detail string) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  "Invalid " + block + " block",
		Detail:   detail,
	}
}
