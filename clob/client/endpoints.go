package client

// API 端点
const (
	EndpointTime         = "/time"
	EndpointCreateAPIKey = "/auth/api-key"
	EndpointDeriveAPIKey = "/auth/derive-api-key"
	EndpointGetOrderBook = "/book"
	EndpointPostOrder    = "/order"
)
