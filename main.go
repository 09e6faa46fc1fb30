package main

import (
	"encoding/base64"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	easy "github.com/t-tomalak/logrus-easy-formatter"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/task"
	"github.com/tsinghua-fib-lab/junction-reservation-sim/utils/config"
	"gopkg.in/yaml.v2"
)

var (
	// 本程序监听的RPC地址，设置为空则不提供RPC服务
	listenAddr = flag.String("listen", ":51102", "RPC listening address (empty means no RPC)")
	// 配置文件路径
	configPath = flag.String("config", "", "config file path")
	// 配置文件Base64编码后的数据
	configData = flag.String("config-data", "", "config file base64 encoded data")
	// 路口布局的缓存地址，设置为空则禁用缓存功能
	// 缓存：将MongoDB中的布局根据db和col序列化到本地文件系统，并总是先试图从文件系统中加载
	cacheDir = flag.String("cache", "data/", "input cache dir path (empty means disable cache)")

	// log
	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel = flag.String("log.level", "info", "日志级别（可选项：trace debug info warn error critical off）")

	log = logrus.WithField("module", "main")
)

func main() {
	flag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	// log: 运行时才修改
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}
	// 获取配置
	var c config.Config
	var file []byte
	var err error
	if *configPath != "" {
		file, err = os.ReadFile(*configPath)
		if err != nil {
			log.Panicf("config file load err: %v", err)
		}
	} else if *configData != "" {
		file, err = base64.StdEncoding.DecodeString(*configData)
		if err != nil {
			log.Panicf("config data load err: %v", err)
		}
	} else {
		log.Panic("config file or config data must be specified")
	}
	if err := yaml.UnmarshalStrict(file, &c); err != nil {
		log.Panicf("config file load err: %v", err)
	}
	log.Infof("%+v", c)

	t := task.NewContext(c, *listenAddr, *cacheDir, true)

	// 收到中断信号后在当前步结束时退出
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Infof("receive %v, stop after current step", s)
		t.Stop()
	}()

	t.Run()
}
