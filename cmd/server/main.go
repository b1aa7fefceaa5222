// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docsage-go/internal/app"
	"docsage-go/internal/config"
	"docsage-go/internal/handler"
	"docsage-go/internal/middleware"
	"docsage-go/internal/service"
	"docsage-go/pkg/kafka"
	"docsage-go/pkg/log"
	"docsage-go/pkg/retry"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 装配组件
	a, err := app.New(cfg)
	if err != nil {
		log.Errorf("组件初始化失败: %v", err)
		return
	}

	// 4. 启动 Kafka 生产者和后台消费者
	kafka.InitProducer(cfg.Kafka)
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		kafka.StartConsumer(consumerCtx, cfg.Kafka, a.Processor, retry.FromConfig(cfg.Retry))
	}()

	// 5. 初始化处理器
	fileService := a.NewFileService(service.TaskQueueFunc(kafka.ProduceFileTask))
	handlers := handler.Handlers{
		Files:         handler.NewFileHandler(fileService),
		Search:        handler.NewSearchHandler(a.Index),
		Chat:          handler.NewChatHandler(a.ChatService, a.History, a.Runner, a.JWT),
		Conversations: handler.NewConversationHandler(a.History),
		Admin:         handler.NewAdminHandler(a.Admin),
	}

	// 6. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())
	handler.RegisterRoutes(r, handlers, a.JWT, cfg.Upload.RatePerMinute)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	stopConsumer()
	<-consumerDone
	// 已触发的重建索引任务继续执行到结束
	a.Runner.Wait()
	if err := kafka.CloseProducer(); err != nil {
		log.Errorf("关闭 Kafka 生产者失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
