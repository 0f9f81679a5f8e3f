// Package application contém os casos de uso do rate limit de janela deslizante.
//
// Ele depende apenas do pacote domain e não conhece net/http nem redis.
// Ex.: RateLimiter.Check(ctx, id, tipo) retorna um Result (allow/deny + retry-after).
//
// Política de falha: se o WindowStore falhar, Check faz fail-open (admite com
// Remaining=0). É uma troca deliberada de disponibilidade por rigor; não é bug.
package application
