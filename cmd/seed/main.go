package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"tapspot/apperr"
	"tapspot/config"
	"tapspot/db"
	"tapspot/logger"
	"tapspot/models"
	"tapspot/services"
)

// Центр разброса постов
const (
	centerLat = 22.5431
	centerLng = 114.0579
	spread    = 0.08
)

type seeder struct {
	users    *services.UserService
	posts    *services.PostService
	comments *services.CommentService
	likes    *services.LikeService
	dialogs  *services.DialogService
	log      *zap.Logger
}

func main() {
	var (
		configPath string
		userCount  int
		postCount  int
	)
	flag.StringVar(&configPath, "config", "", "Path to the configuration file")
	flag.IntVar(&userCount, "users", 20, "Number of users to generate")
	flag.IntVar(&postCount, "posts", 100, "Number of posts to generate")
	flag.Parse()

	conf, err := config.LoadConfig(configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	log, err := logger.New(conf.Logs.Level)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	orm, err := db.Open(conf.Database, log)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}

	registry := services.NewRegistry(log)
	s := &seeder{
		users:    services.NewUserService(orm),
		posts:    services.NewPostService(orm),
		comments: services.NewCommentService(orm),
		likes:    services.NewLikeService(orm),
		dialogs: services.NewDialogService(orm, services.NewLocalNotifier(registry),
			services.NewLocalPresence(registry), log, conf.Chat.MaxMessageLength),
		log: log,
	}
	if err := s.run(context.Background(), userCount, postCount); err != nil {
		log.Fatal("seed failed", zap.Error(err))
	}
}

func (s *seeder) run(ctx context.Context, userCount, postCount int) error {
	root, err := s.users.Register(ctx, "root", "root", "root")
	if apperr.IsKind(err, apperr.KindConflict) {
		root, err = s.users.Authenticate(ctx, "root", "root")
	}
	if err != nil {
		return fmt.Errorf("demo user: %w", err)
	}

	userIDs := []int64{root.ID}
	for i := 0; i < userCount; i++ {
		name := strings.ToLower(gofakeit.FirstName()) + "_" + gofakeit.Numerify("####")
		u, err := s.users.Register(ctx, name, "password", gofakeit.FirstName())
		if apperr.IsKind(err, apperr.KindConflict) {
			continue
		}
		if err != nil {
			return err
		}
		userIDs = append(userIDs, u.ID)
	}
	s.log.Info("users created", zap.Int("count", len(userIDs)))

	for i := 0; i < postCount; i++ {
		if err := s.seedPost(ctx, userIDs); err != nil {
			return err
		}
	}
	s.log.Info("posts created", zap.Int("count", postCount))

	// несколько диалогов с демо-пользователем
	for _, peer := range userIDs[1:min(len(userIDs), 6)] {
		for j := 0; j < gofakeit.Number(1, 5); j++ {
			from, to := root.ID, peer
			if gofakeit.Bool() {
				from, to = peer, root.ID
			}
			if _, err := s.dialogs.SendTo(ctx, from, to, gofakeit.Sentence(6)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *seeder) seedPost(ctx context.Context, userIDs []int64) error {
	lat := centerLat + gofakeit.Float64Range(-spread, spread)
	lng := centerLng + gofakeit.Float64Range(-spread, spread)
	post, err := s.posts.Create(ctx, pick(userIDs), services.CreatePostInput{
		Title:        strings.TrimSuffix(gofakeit.Sentence(3), "."),
		Content:      gofakeit.Sentence(15),
		Type:         string(models.PostTypes[gofakeit.Number(0, len(models.PostTypes)-1)]),
		LocationName: gofakeit.Street(),
		Latitude:     &lat,
		Longitude:    &lng,
	})
	if err != nil {
		return err
	}

	for i := 0; i < gofakeit.Number(0, 4); i++ {
		comment, err := s.comments.Create(ctx, post.ID, pick(userIDs), gofakeit.Sentence(8), nil)
		if err != nil {
			return err
		}
		for j := 0; j < gofakeit.Number(0, 3); j++ {
			if _, err := s.likes.Toggle(ctx, pick(userIDs), models.TargetComment, comment.ID); err != nil {
				return err
			}
		}
	}
	for i := 0; i < gofakeit.Number(0, 5); i++ {
		if _, err := s.likes.Toggle(ctx, pick(userIDs), models.TargetPost, post.ID); err != nil {
			return err
		}
	}
	return nil
}

func pick(ids []int64) int64 {
	return ids[gofakeit.Number(0, len(ids)-1)]
}
