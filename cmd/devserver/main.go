// Package main 是本地开发后端的入口点。
package main

import (
	"flag"
	"fmt"

	"github.com/gin-gonic/gin"

	"pai-chat-client/internal/config"
	"pai-chat-client/internal/devserver"
	"pai-chat-client/pkg/database"
	"pai-chat-client/pkg/log"
	"pai-chat-client/pkg/token"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	config.Init(*configPath)
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()

	gin.SetMode(cfg.DevServer.Mode)

	var store devserver.Store
	switch cfg.DevServer.Store {
	case "persistent":
		database.InitMySQL(cfg.DevServer.MySQL.DSN)
		database.InitRedis(cfg.DevServer.Redis.Addr, cfg.DevServer.Redis.Password, cfg.DevServer.Redis.DB)
		var err error
		store, err = devserver.NewPersistentStore(database.DB, database.RDB)
		if err != nil {
			log.Fatal("初始化持久化存储失败", err)
		}
	default:
		store = devserver.NewMemoryStore()
	}

	jwtManager := token.NewJWTManager(cfg.DevServer.JWT.Secret, cfg.DevServer.JWT.AccessTokenExpireHours)
	srv := devserver.New(store, jwtManager)

	if err := srv.Run(fmt.Sprintf(":%s", cfg.DevServer.Port)); err != nil {
		log.Fatal("开发后端退出", err)
	}
}
