// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisWindowStore: janela deslizante em sorted sets, com scripts Lua atômicos
//   - MemoryStatsStore / RedisStatsStore / PrometheusStatsStore: estatísticas de decisão
package infra
