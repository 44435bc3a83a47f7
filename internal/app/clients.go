package app

import (
	"fmt"

	"github.com/yungbote/enneagram-backend/internal/clients/redis"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
	"github.com/yungbote/enneagram-backend/internal/platform/openai"
	"github.com/yungbote/enneagram-backend/internal/platform/sendgrid"
	"github.com/yungbote/enneagram-backend/internal/platform/stripe"
)

// Clients holds the outbound integrations. Each one is nil when its
// credentials are not configured.
type Clients struct {
	Stripe   stripe.Client
	SendGrid sendgrid.Mailer
	OpenAI   openai.Client
	Locker   redis.Locker
	SendFrom sendgrid.Address
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// Stripe
	stripeCfg := stripe.ConfigFromEnv()
	if stripeCfg.SecretKey != "" {
		sc, err := stripe.New(log, stripeCfg)
		if err != nil {
			return Clients{}, fmt.Errorf("init stripe client: %w", err)
		}
		c.Stripe = sc
	} else {
		log.Warn("STRIPE_SECRET_KEY not set; checkout disabled, bypass only")
	}

	// SendGrid
	sgCfg := sendgrid.ConfigFromEnv()
	c.SendFrom = sgCfg.From
	if sgCfg.APIKey != "" {
		sg, err := sendgrid.New(log, sgCfg)
		if err != nil {
			return Clients{}, fmt.Errorf("init sendgrid client: %w", err)
		}
		c.SendGrid = sg
	} else {
		log.Warn("SENDGRID_API_KEY not set; results email disabled")
	}

	// OpenAI
	oaCfg := openai.ConfigFromEnv()
	if oaCfg.APIKey != "" {
		oc, err := openai.New(log, oaCfg)
		if err != nil {
			return Clients{}, fmt.Errorf("init openai client: %w", err)
		}
		c.OpenAI = oc
	} else {
		log.Warn("OPENAI_API_KEY not set; analyses will fail until configured")
	}

	// Redis
	locker, err := redis.NewLockerFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis locker: %w", err)
	}
	c.Locker = locker

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Locker != nil {
		_ = c.Locker.Close()
	}
}
