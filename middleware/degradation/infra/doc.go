// Package infra liga o gerenciador de degradação ao mundo externo:
//   - RedisProbe: PING no Redis
//   - HTTPProbe: GET num endpoint de saúde (resty)
//   - Collector: exporta o Status do gerenciador para o Prometheus
package infra
