package run

import "context"

// hookWorker runs queued hook jobs one at a time until ctx is cancelled.
func (s *Server) hookWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.hookCh:
			if err := s.hook.Run(ctx, job); err != nil {
				s.metrics.Hooks.WithLabelValues("failed").Inc()
				s.logger.Errorf("hook: %v", err)
				continue
			}
			s.metrics.Hooks.WithLabelValues("sent").Inc()
		}
	}
}
