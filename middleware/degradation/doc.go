// Package degradation fornece os adapters HTTP (net/http) da degradação graciosa.
//
// Camadas:
//
//   - domain: níveis, status, probes e fallbacks
//   - application: Manager (monitoramento, transição de nível, fallback com cache)
//   - infra: probes Redis/HTTP e collector Prometheus
//   - degradation (este pacote): handlers JSON e header X-Service-Level
//
// Todo response carrega X-Service-Level com o nível no momento da resposta.
// Erro do caminho escolhido (primário ou fallback) vira 500.
package degradation
