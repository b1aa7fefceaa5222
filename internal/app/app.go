// Package app 负责按配置装配全部组件，供 HTTP 服务和运维命令共用。
package app

import (
	"fmt"

	"docsage-go/internal/config"
	"docsage-go/internal/extract"
	"docsage-go/internal/knowledgebase"
	"docsage-go/internal/model"
	"docsage-go/internal/pipeline"
	"docsage-go/internal/reindex"
	"docsage-go/internal/repository"
	"docsage-go/internal/service"
	"docsage-go/internal/tagger"
	"docsage-go/internal/vectorstore"
	"docsage-go/internal/vectorstore/elastic"
	"docsage-go/internal/vectorstore/memory"
	"docsage-go/pkg/database"
	"docsage-go/pkg/embedding"
	"docsage-go/pkg/es"
	"docsage-go/pkg/llm"
	"docsage-go/pkg/log"
	"docsage-go/pkg/retry"
	"docsage-go/pkg/storage"
	"docsage-go/pkg/tika"
	"docsage-go/pkg/token"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// App 持有装配完成的组件。
type App struct {
	Config config.Config

	DB    *gorm.DB
	RDB   *redis.Client
	Blobs *storage.ObjectStore

	Files         repository.FileRepository
	Conversations repository.ConversationRepository
	ReindexStatus repository.ReindexStatusRepository

	Index     *knowledgebase.Index
	Indexer   *reindex.Indexer
	Job       *reindex.Job
	Runner    *reindex.Runner
	Processor *pipeline.Processor

	LLM         llm.Client
	JWT         *token.JWTManager
	ChatService service.ChatService
	History     service.ConversationService
	Admin       service.AdminService
}

// New 初始化外部依赖并装配组件。任何基础设施不可用都会直接退出进程。
func New(cfg config.Config) (*App, error) {
	a := &App{Config: cfg}

	log.Info("[App] 步骤1: 初始化数据库、Redis 和对象存储")
	database.InitDB(cfg.Database.Driver, cfg.Database.DSN)
	if err := database.DB.AutoMigrate(&model.FileRecord{}); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	a.DB = database.DB
	a.RDB = database.RDB
	a.Blobs = storage.NewObjectStore(storage.MinioClient, cfg.MinIO.BucketName)

	a.Files = repository.NewFileRepository(a.DB)
	a.Conversations = repository.NewConversationRepository(a.RDB)
	a.ReindexStatus = repository.NewReindexStatusRepository(a.RDB)

	log.Info("[App] 步骤2: 初始化知识库索引")
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	policy := retry.FromConfig(cfg.Retry)
	a.Index = knowledgebase.NewIndex(store, tagger.NewKeywordTagger(), knowledgebase.Options{
		DefaultResults: cfg.KnowledgeBase.DefaultResults,
		MaxDocuments:   cfg.KnowledgeBase.MaxDocuments,
		Retry:          policy,
	})

	log.Info("[App] 步骤3: 初始化文件处理与重建索引")
	a.Indexer = &reindex.Indexer{
		Blobs:     a.Blobs,
		Extractor: extract.NewRouter(tika.NewClient(cfg.Tika)),
		Index:     a.Index,
		TempDir:   cfg.Reindex.TempDir,
	}
	a.Job = &reindex.Job{Files: a.Files, Indexer: a.Indexer}
	a.Runner = reindex.NewRunner(a.Job, a.ReindexStatus)
	a.Processor = pipeline.NewProcessor(a.Indexer)

	log.Info("[App] 步骤4: 初始化业务服务")
	a.LLM = llm.NewClient(cfg.LLM)
	a.JWT = token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	a.ChatService = service.NewChatService(a.Index, a.LLM, service.ChatOptions{
		DefaultModel:   cfg.LLM.Model,
		ContextResults: cfg.KnowledgeBase.ChatResults,
		Retry:          policy,
	})
	a.History = service.NewConversationService(a.Conversations, a.Blobs, cfg.History.Prefix)
	a.Admin = service.NewAdminService(a.Index, a.Files, a.Blobs)
	return a, nil
}

// NewFileService 使用给定的任务队列创建文件服务。
func (a *App) NewFileService(queue service.TaskQueue) service.FileService {
	return service.NewFileService(a.Files, a.Blobs, a.Index, queue, a.Config.Upload)
}

// newStore 按 knowledge_base.store 选择向量存储。
func newStore(cfg config.Config) (vectorstore.Store, error) {
	switch cfg.KnowledgeBase.Store {
	case "", "elasticsearch":
		if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
			return nil, fmt.Errorf("es 初始化失败: %w", err)
		}
		return elastic.NewStore(es.ESClient, embedding.NewClient(cfg.Embedding), cfg.Elasticsearch.IndexName), nil
	case "memory":
		log.Warnf("[App] 使用内存向量存储，数据不会持久化")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unsupported knowledge_base.store: %s", cfg.KnowledgeBase.Store)
	}
}
