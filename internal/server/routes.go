package server

func (s *Server) RegisterRoutes() {
	s.engine.GET("/healthz", s.Healthz)
	s.engine.GET("/readyz", s.Readyz)
	s.engine.GET("/metrics", s.metricsHandler())

	// Vendor redirect target; reachable without tenant headers because
	// the browser arrives here straight from the PG's hosted page.
	s.engine.GET("/billing/callback", s.HandleCallback)

	api := s.engine.Group("/api", s.TenantRequired())
	{
		billing := api.Group("/billing")
		billing.POST("/registrations", s.BeginRegistration)

		billing.GET("/payment-methods", s.ListPaymentMethods)
		billing.POST("/payment-methods/register", s.ExchangeAuthKey)
		billing.PUT("/payment-methods/:id/default", s.SetDefaultPaymentMethod)
		billing.DELETE("/payment-methods/:id", s.DeletePaymentMethod)

		billing.GET("/plans", s.ListPlans)

		billing.GET("/subscriptions", s.ListSubscriptions)
		billing.POST("/subscriptions", s.CreateSubscription)
		billing.POST("/subscriptions/:id/activate", s.ActivateSubscription)
		billing.POST("/subscriptions/:id/cancel", s.CancelSubscription)

		billing.POST("/pg-configurations", s.SubmitPgConfiguration)
	}

	ops := s.engine.Group("/ops", s.OpsKeyRequired())
	{
		ops.GET("/pg-configurations", s.ListPendingPgConfigurations)
		ops.GET("/pg-configurations/:id", s.GetPgConfiguration)
		ops.POST("/pg-configurations/:id/test-connection", s.TestPgConfigurationConnection)
		ops.POST("/pg-configurations/:id/decrypt-keys", s.DecryptPgConfigurationKeys)
		ops.POST("/pg-configurations/:id/approve", s.ApprovePgConfiguration)
		ops.POST("/pg-configurations/:id/reject", s.RejectPgConfiguration)
		ops.POST("/pg-configurations/:id/activate", s.ActivatePgConfiguration)
		ops.POST("/pg-configurations/:id/deactivate", s.DeactivatePgConfiguration)
	}
}
