package application

import (
	"strconv"

	"service-guard/middleware/degradation/domain"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// keyJSON ordena as chaves de mapa, então Args iguais geram os mesmos bytes.
var keyJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// cacheKey deriva a chave do cache a partir de (operação, args).
// Valores que não serializam (func, chan, ciclos) retornam erro e a
// chamada segue sem cache.
func cacheKey(operation string, args domain.Args) (string, error) {
	if len(args) == 0 {
		args = domain.Args{}
	}
	b, err := keyJSON.Marshal(args)
	if err != nil {
		return "", errors.WithMessage(err, "encode args")
	}
	return operation + ":" + strconv.FormatUint(xxhash.Sum64(b), 16), nil
}
