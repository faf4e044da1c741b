package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/zg04ckpt/listenE-sub002/cache"
	"github.com/zg04ckpt/listenE-sub002/config"
	"github.com/zg04ckpt/listenE-sub002/core/audio"
	"github.com/zg04ckpt/listenE-sub002/core/auth"
	"github.com/zg04ckpt/listenE-sub002/core/dictation"
	"github.com/zg04ckpt/listenE-sub002/db"
	"github.com/zg04ckpt/listenE-sub002/logger"
	"github.com/zg04ckpt/listenE-sub002/model"
	"github.com/zg04ckpt/listenE-sub002/repository"
	"github.com/zg04ckpt/listenE-sub002/storage"

	"github.com/gorilla/mux"
	"github.com/minio/minio-go/v7"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogOutputPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	// 监听 .env 变化，热更新日志级别
	stopWatcher, err := config.WatchLogLevel(".env")
	if err != nil {
		logger.Warn("启动配置文件监听失败", logger.ErrorField(err))
	} else {
		defer stopWatcher()
	}

	auth.InitJWT(cfg.JWTSecret, cfg.JWTExpireHours)

	// 初始化 MinIO 客户端
	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("初始化 MinIO 失败", logger.ErrorField(err))
	}

	// 连接数据库
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("连接数据库失败", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.User{}, &model.Track{}, &model.Segment{}); err != nil {
		logger.Fatal("数据库迁移失败", logger.ErrorField(err))
	}

	// 连接Redis，失败时降级为无缓存运行
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Warn("连接Redis失败，音轨内容缓存不可用", logger.ErrorField(err))
	} else {
		defer db.CloseRedis()
	}

	trackRepo := repository.NewGormTrackRepository(db.GormDB)
	userRepo := repository.NewGormUserRepository(db.GormDB)
	audioStore := storage.NewMinioAudioStore(cfg)
	clipper := audio.NewFFmpegClipper(audio.NewFFmpegProcessor(cfg.FFmpegPath, cfg.AudioBitrate))
	trackCache := cache.NewTrackCache(db.RedisClient)

	trackService := dictation.NewService(trackRepo, audioStore, clipper, trackCache)
	apiHandler := NewAPIHandler(trackService, userRepo, cfg)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 用户认证相关的API端点
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)

	// 音轨管理端点（作者侧，需要认证）
	router.HandleFunc("/api/tracks", apiHandler.AuthMiddleware(apiHandler.CreateTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.UpdateTrackHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteTrackHandler)).Methods(http.MethodDelete)

	// 学习侧端点
	router.HandleFunc("/api/tracks", apiHandler.GetTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", apiHandler.GetTrackContentHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/segments/{id}/check", apiHandler.CheckSegmentHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/segments/{id}/practice", apiHandler.PracticeHandler).Methods(http.MethodGet)

	// MinIO音频对象服务路由
	router.PathPrefix(storage.URLPrefix).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		objectPath := strings.TrimPrefix(r.URL.Path, storage.URLPrefix)
		client := storage.GetMinioClient()
		if client == nil {
			http.Error(w, "Storage not available", http.StatusInternalServerError)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		object, err := client.GetObject(ctx, cfg.MinioBucket, objectPath, minio.GetObjectOptions{})
		if err != nil {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		defer object.Close()

		var contentType string
		if strings.HasSuffix(objectPath, ".mp3") {
			contentType = "audio/mpeg"
		} else {
			contentType = "application/octet-stream"
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=31536000") // 缓存一年

		if _, err := io.Copy(w, object); err != nil {
			logger.Warn("音频对象传输失败", logger.String("object", objectPath), logger.ErrorField(err))
		}
	})

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		logger.Info("服务器启动", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务器启动失败", logger.ErrorField(err))
		}
	}()

	// 等待中断信号
	<-stop
	logger.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("服务器强制关闭", logger.ErrorField(err))
	}

	logger.Info("服务器已停止")
}
