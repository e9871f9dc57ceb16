package main

import (
	"fmt"
	"log"

	"vault-core/internal/model"
	"vault-core/pkg/config"
	"vault-core/pkg/database"
)

// 独立迁移入口: 服务启动也会 AutoMigrate, 这里用于部署前单独建表
func main() {
	// 加载配置
	config.Init()

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=Asia/Shanghai",
		config.Global.DB.Host,
		config.Global.DB.User,
		config.Global.DB.Password,
		config.Global.DB.Name,
		config.Global.DB.Port,
	)

	db, err := database.ConnectPostgres(dsn)
	if err != nil {
		log.Fatalf("Database connect failed: %v", err)
	}

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migration done")
}
