package input

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/yaml.v2"
)

const downloadTimeout = 30 * time.Second

// LayoutFile 路口布局文件（YAML）的根结构，也是MongoDB下载结果的缓存格式
type LayoutFile struct {
	Layouts []config.JunctionLayout `yaml:"layouts"`
}

// Init 加载路口布局
// 功能：按优先级从配置内联布局、布局文件、本地缓存或MongoDB获取全部路口布局
// 参数：c-配置对象，cacheDir-缓存目录（为空则禁用缓存）
// 返回：按路口ID升序的布局
// 算法说明：
// 1. 配置中直接给出layouts时使用之
// 2. input.layout.file不为空时读取YAML文件
// 3. 否则先尝试读取缓存{cacheDir}/{db}.{col}.yaml，没有缓存时从MongoDB下载并写入缓存
// 说明：任何一步失败都会panic，没有任何路口时同样panic
func Init(c config.Config, cacheDir string) []config.JunctionLayout {
	layouts, err := load(c, cacheDir)
	if err != nil {
		log.Panicf("failed to load junction layouts: %v", err)
	}
	if len(layouts) == 0 {
		log.Panic("no junction layout to simulate")
	}
	sort.SliceStable(layouts, func(i, j int) bool { return layouts[i].ID < layouts[j].ID })
	log.Infof("load %d junction layouts", len(layouts))
	return layouts
}

func load(c config.Config, cacheDir string) ([]config.JunctionLayout, error) {
	if len(c.Layouts) > 0 {
		log.Info("use inline junction layouts")
		return c.Layouts, nil
	}
	path := c.Input.Layout
	if path.File != "" {
		return ReadFile(path.File)
	}
	cacheDir = resolveCacheDir(cacheDir)
	var cacheFile string
	if cacheDir != "" {
		cacheFile = filepath.Join(cacheDir, path.GetCachePath())
		layouts, err := ReadFile(cacheFile)
		switch {
		case err == nil:
			log.Infof("load junction layouts from cache %s", cacheFile)
			return layouts, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}
	if path.OnlyCache {
		return nil, fmt.Errorf("no cache for %s.%s in %q", path.DB, path.Col, cacheDir)
	}
	if c.Input.URI == "" || path.DB == "" || path.Col == "" {
		return nil, errors.New("neither layouts, input.layout.file nor input.uri with input.layout.db/col is set")
	}
	log.Infof("start fetching from %s.%s", path.DB, path.Col)
	layouts, err := download(c.Input.URI, path)
	if err != nil {
		return nil, err
	}
	log.Infof("finish fetching %d layouts from %s.%s", len(layouts), path.DB, path.Col)
	if cacheFile != "" {
		if err := WriteFile(cacheFile, layouts); err != nil {
			log.Warnf("failed to write cache: %v", err)
		}
	}
	return layouts, nil
}

// download 从MongoDB集合下载全部路口布局，每个文档是一个路口
func download(uri string, path config.InputPath) ([]config.JunctionLayout, error) {
	ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	defer client.Disconnect(context.Background())
	coll := client.Database(path.DB).Collection(path.Col)
	cursor, err := coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find in %s.%s: %w", path.DB, path.Col, err)
	}
	var layouts []config.JunctionLayout
	if err := cursor.All(ctx, &layouts); err != nil {
		return nil, fmt.Errorf("decode %s.%s: %w", path.DB, path.Col, err)
	}
	return layouts, nil
}

// ReadFile 读取YAML布局文件，未知字段视为错误
func ReadFile(name string) ([]config.JunctionLayout, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	var f LayoutFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return f.Layouts, nil
}

// WriteFile 将布局写入YAML文件
func WriteFile(name string, layouts []config.JunctionLayout) error {
	data, err := yaml.Marshal(LayoutFile{Layouts: layouts})
	if err != nil {
		return err
	}
	return os.WriteFile(name, data, 0o644)
}
