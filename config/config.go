package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/danthegoodman1/adaptree/optimizer"
	"github.com/danthegoodman1/adaptree/partitioner"
	"github.com/danthegoodman1/adaptree/tree"
	"github.com/danthegoodman1/adaptree/utils"
	"github.com/danthegoodman1/adaptree/value"
	"gopkg.in/yaml.v3"
)

const (
	MetaStoreSQLite = "sqlite"
	MetaStoreCRDB   = "crdb"

	DataStoreDisk = "disk"
	DataStoreS3   = "s3"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	MetaStore MetaStoreConfig `yaml:"metastore"`
	DataStore DataStoreConfig `yaml:"datastore"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Tables    []TableConfig   `yaml:"tables"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type MetaStoreConfig struct {
	Kind       string `yaml:"kind"` // sqlite or crdb
	SQLitePath string `yaml:"sqlite_path"`
	CRDBDSN    string `yaml:"crdb_dsn"`
}

type DataStoreConfig struct {
	Kind       string `yaml:"kind"` // disk or s3
	Path       string `yaml:"path"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix"`
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`
}

type OptimizerConfig struct {
	DiskCost        float64 `yaml:"disk_cost"`
	NetworkCost     float64 `yaml:"network_cost"`
	NodeMemoryBytes float64 `yaml:"node_memory_bytes"`
	TupleBytes      float64 `yaml:"tuple_bytes"`
}

type ColumnConfig struct {
	Name string   `yaml:"name"`
	Type string   `yaml:"type"`
	Func string   `yaml:"func"`
	Args []string `yaml:"args"`
}

type TableConfig struct {
	Name string `yaml:"name"`
	// SamplePath is a `|` delimited sample file to build the tree from.
	SamplePath string         `yaml:"sample_path"`
	Columns    []ColumnConfig `yaml:"columns"`

	MaxBuckets   int   `yaml:"max_buckets"`
	DatasetBytes int64 `yaml:"dataset_bytes"`
	BlockSize    int64 `yaml:"block_size"`

	TotalTuples      float64         `yaml:"total_tuples"`
	Seed             int64           `yaml:"seed"`
	AttributeWeights map[int]float64 `yaml:"attribute_weights"`
	WindowSize       int             `yaml:"window_size"`
	// Restore loads the latest checkpoint instead of building when one exists.
	Restore bool `yaml:"restore"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port: utils.GetEnvOrDefault("HTTP_PORT", "8080"),
		},
		MetaStore: MetaStoreConfig{
			Kind:       MetaStoreSQLite,
			SQLitePath: utils.SQLITE_PATH,
			CRDBDSN:    utils.CRDB_DSN,
		},
		DataStore: DataStoreConfig{
			Kind:       DataStoreDisk,
			Path:       utils.DATA_DIR,
			S3Bucket:   utils.S3_BUCKET_NAME,
			S3Region:   utils.AWS_DEFAULT_REGION,
			S3Endpoint: utils.S3_ENDPOINT,
		},
		Optimizer: OptimizerConfig{
			DiskCost:        optimizer.DefaultCostModel().DiskCost,
			NetworkCost:     optimizer.DefaultCostModel().NetworkCost,
			NodeMemoryBytes: optimizer.DefaultCostModel().NodeMemoryBytes,
			TupleBytes:      optimizer.DefaultCostModel().TupleBytes,
		},
	}
}

// Load reads the YAML file at configPath over the defaults. An empty path
// looks for adaptree.yaml and falls back to the defaults when it is missing.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath == "" {
		for _, p := range []string{"configs/adaptree.yaml", "adaptree.yaml"} {
			data, err := os.ReadFile(p)
			if err == nil {
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return cfg, err
				}
				applyDefaults(cfg)
				return cfg, cfg.validate()
			}
		}
		return cfg, cfg.validate()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, err
	}

	applyDefaults(cfg)
	return cfg, cfg.validate()
}

func applyDefaults(cfg *Config) {
	def := optimizer.DefaultCostModel()
	if cfg.Optimizer.DiskCost <= 0 {
		cfg.Optimizer.DiskCost = def.DiskCost
	}
	if cfg.Optimizer.NetworkCost < 0 {
		cfg.Optimizer.NetworkCost = def.NetworkCost
	}
	if cfg.Optimizer.NodeMemoryBytes <= 0 {
		cfg.Optimizer.NodeMemoryBytes = def.NodeMemoryBytes
	}
	if cfg.Optimizer.TupleBytes <= 0 {
		cfg.Optimizer.TupleBytes = def.TupleBytes
	}
	if cfg.MetaStore.Kind == "" {
		cfg.MetaStore.Kind = MetaStoreSQLite
	}
	if cfg.DataStore.Kind == "" {
		cfg.DataStore.Kind = DataStoreDisk
	}
}

func (cfg *Config) validate() error {
	switch cfg.MetaStore.Kind {
	case MetaStoreSQLite, MetaStoreCRDB:
	default:
		return fmt.Errorf("%w: unknown metastore kind %q", ErrInvalidConfig, cfg.MetaStore.Kind)
	}
	switch cfg.DataStore.Kind {
	case DataStoreDisk, DataStoreS3:
	default:
		return fmt.Errorf("%w: unknown datastore kind %q", ErrInvalidConfig, cfg.DataStore.Kind)
	}

	seen := map[string]bool{}
	for _, tc := range cfg.Tables {
		if tc.Name == "" {
			return fmt.Errorf("%w: table without a name", ErrInvalidConfig)
		}
		if seen[tc.Name] {
			return fmt.Errorf("%w: duplicate table %s", ErrInvalidConfig, tc.Name)
		}
		seen[tc.Name] = true
		if _, err := tc.PartitionerColumns(); err != nil {
			return fmt.Errorf("%w: table %s: %s", ErrInvalidConfig, tc.Name, err.Error())
		}
		if _, err := tc.ResolveMaxBuckets(); err != nil {
			return fmt.Errorf("%w: table %s: %s", ErrInvalidConfig, tc.Name, err.Error())
		}
	}
	return nil
}

func (oc OptimizerConfig) CostModel() optimizer.CostModel {
	return optimizer.CostModel{
		DiskCost:        oc.DiskCost,
		NetworkCost:     oc.NetworkCost,
		NodeMemoryBytes: oc.NodeMemoryBytes,
		TupleBytes:      oc.TupleBytes,
	}
}

func (tc TableConfig) PartitionerColumns() ([]partitioner.Column, error) {
	if len(tc.Columns) == 0 {
		return nil, fmt.Errorf("no columns")
	}
	cols := make([]partitioner.Column, len(tc.Columns))
	for i, cc := range tc.Columns {
		t, err := value.ParseType(cc.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", cc.Name, err)
		}
		cols[i] = partitioner.Column{
			Name: cc.Name,
			Type: t,
			Func: cc.Func,
			Args: cc.Args,
		}
	}
	return cols, nil
}

// ResolveMaxBuckets prefers an explicit bucket count and otherwise sizes the
// tree for the dataset.
func (tc TableConfig) ResolveMaxBuckets() (int, error) {
	if tc.MaxBuckets > 0 {
		return tc.MaxBuckets, nil
	}
	if tc.DatasetBytes > 0 && tc.BlockSize > 0 {
		return tree.BucketsForDatasetSize(tc.DatasetBytes, tc.BlockSize), nil
	}
	return 0, fmt.Errorf("set max_buckets or both dataset_bytes and block_size")
}
