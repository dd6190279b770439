package docindex

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Hain2000/docindex/engine"
	"github.com/Hain2000/docindex/index"
	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

type Options struct {
	DirPath          string `yaml:"dirPath"`          // 索引数据目录
	DefaultAlgorithm string `yaml:"defaultAlgorithm"` // 创建索引时没有指定算法用这个
	CacheSize        int    `yaml:"cacheSize"`        // 每个索引的读缓存大小，0 表示不开启
	SyncWrites       bool   `yaml:"syncWrites"`       // 每次写是否需要持久化
	NodeID           int64  `yaml:"nodeId"`           // 事务 id 生成器的节点号
	BackupDir        string `yaml:"backupDir"`        // 定时备份的目录
	BackupSchedule   string `yaml:"backupSchedule"`   // 定时备份的 cron 表达式，空表示不备份

	Logger     hclog.Logger          `yaml:"-"`
	Registerer prometheus.Registerer `yaml:"-"` // 为 nil 时指标不注册
	Source     index.RecordSource    `yaml:"-"` // 重建索引时扫描记录
	Versions   VersionChecker        `yaml:"-"` // 删除记录时检查并发修改
}

var DefaultOptions = Options{
	DirPath:          filepath.Join(os.TempDir(), "docindex"),
	DefaultAlgorithm: engine.Pebble,
	CacheSize:        0,
	SyncWrites:       false,
	NodeID:           1,
}

func checkOptions(options Options) error {
	if options.DirPath == "" {
		return errors.New("index dir path is empty")
	}
	if !slices.Contains(engine.Algorithms(), strings.ToUpper(options.DefaultAlgorithm)) {
		return errors.Wrapf(engine.ErrUnknownAlgorithm, "%q", options.DefaultAlgorithm)
	}
	if options.CacheSize < 0 {
		return errors.New("index cache size must not be negative")
	}
	if options.NodeID < 0 || options.NodeID > 1023 {
		return errors.Newf("node id %d out of range [0, 1023]", options.NodeID)
	}
	if options.BackupSchedule != "" && options.BackupDir == "" {
		return errors.New("backup schedule needs a backup dir")
	}
	return nil
}

// LoadOptions 从 yaml 文件读取配置，没有配置的项使用 DefaultOptions
func LoadOptions(path string) (Options, error) {
	options := DefaultOptions
	b, err := os.ReadFile(path)
	if err != nil {
		return options, err
	}
	if err := yaml.Unmarshal(b, &options); err != nil {
		return options, errors.Wrapf(err, "parse options %s", path)
	}
	return options, nil
}
