package main

import (
	"context"
	"flag"
	"io"

	"github.com/epikoding/giftpool/internal/config"
	"github.com/epikoding/giftpool/internal/gift"
	"github.com/epikoding/giftpool/internal/store"
	"github.com/google/logger"
	"github.com/shopspring/decimal"
)

type demoParticipant struct {
	Name         string
	Contribution string
}

var demoParticipants = []demoParticipant{
	{Name: "Jane Doe", Contribution: "20.00"},
	{Name: "Mike Johnson", Contribution: "15.00"},
	{Name: "Sarah Williams", Contribution: "30.00"},
}

func main() {
	secret := flag.String("secret", "demo123", "Organizer secret for the demo session")
	count := flag.Int("count", 1, "Number of demo sessions to create")
	flag.Parse()

	defer logger.Init("giftpool-seed", true, false, io.Discard).Close()

	cfg := config.Load()
	policy, err := gift.ParsePolicy(cfg.CompletionPolicy)
	if err != nil {
		logger.Fatalf("Invalid COMPLETION_POLICY: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Fatalf("Failed to open %s store: %v", cfg.StorageBackend, err)
	}
	defer st.Close()

	service := gift.NewService(st, gift.Options{Policy: policy})
	ctx := context.Background()

	logger.Infof("Seeding %d demo session(s) into %s storage", *count, cfg.StorageBackend)

	for i := 0; i < *count; i++ {
		id, err := service.CreateSession(ctx, gift.CreateSessionInput{
			OrganizerName:         "John Smith",
			GiftName:              "Wireless Headphones",
			GiftLink:              "https://example.com/headphones",
			GiftPrice:             decimal.RequireFromString("89.99"),
			OrganizerContribution: decimal.RequireFromString("25.00"),
			ExpectedParticipants:  4,
			OrganizerSecret:       *secret,
		})
		if err != nil {
			logger.Fatalf("Failed to create demo session: %v", err)
		}

		for _, p := range demoParticipants {
			if _, err := service.AddParticipant(ctx, id, p.Name, decimal.RequireFromString(p.Contribution)); err != nil {
				logger.Errorf("Failed to add %s to %s: %v", p.Name, id, err)
			}
		}

		view, err := service.GetSession(ctx, id)
		if err != nil {
			logger.Fatalf("Failed to load demo session %s: %v", id, err)
		}
		logger.Infof("Created demo session %s: %d participants, collected %s of %s, complete=%t",
			id, len(view.Participants), view.TotalContributed.StringFixed(2), view.GiftPrice.StringFixed(2), view.IsComplete)
	}

	logger.Info("Seeding complete")
}
