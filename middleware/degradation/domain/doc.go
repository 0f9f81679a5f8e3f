// Package domain define os tipos da degradação graciosa: nível de serviço,
// status de dependências, contratos de probe e operações de fallback.
//
// Sem dependência de net/http nem de clientes concretos.
package domain
