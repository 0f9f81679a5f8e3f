// Package ratelimit fornece o adapter HTTP (net/http) para o rate limit de janela deslizante.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http nem redis)
//   - application: casos de uso (Check/Reset/Status/GlobalStats/Cleanup) e a política fail-open
//   - infra: implementações concretas (store Redis com scripts Lua, stats em memória/Redis/Prometheus)
//   - ratelimit (este pacote): middleware HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//   1) Extrai a chave do cliente (header/XFF/IP)
//   2) Chama RateLimiter.Check para o tipo configurado
//   3) Se bloqueado, responde 429 com Retry-After
//   4) Se permitido, chama o próximo handler (ex: reverse proxy)
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como RATE_LIMIT_TYPE, RATE_KEY_HEADER, TRUST_XFF e LIMITS_FILE.
package ratelimit
