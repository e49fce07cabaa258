package server

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// StartJobs launches the background maintenance schedule: a periodic health
// sweep over the store and the vendor index. The returned cron can be
// stopped on shutdown.
func (s *Server) StartJobs() *cron.Cron {
	c := cron.New()

	c.AddFunc("@every 5m", func() {
		if err := s.Store.Ping(); err != nil {
			s.Logger.Printf("[JOBS] store ping failed: %v", err)
		}
		if s.Index == nil {
			return
		}
		if err := s.Index.Ping(); err != nil {
			s.Logger.Printf("[JOBS] vendor index ping failed: %v", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if n, err := s.Index.Count(ctx); err != nil {
			s.Logger.Printf("[JOBS] vendor index count failed: %v", err)
		} else {
			s.Logger.Printf("[JOBS] vendor index holds %d vendors", n)
		}
	})

	c.Start()
	return c
}
