package respcache

import (
	"encoding/json"
	"fmt"
)

// Params are the request parameters that, with the endpoint, identify a
// cached response.
type Params map[string]any

// Key derives the cache key for endpoint and params.
//
// Params are serialized as JSON; encoding/json writes map keys in sorted
// order, so logically identical params always produce the same key
// regardless of how the map was built. Nil and empty params are equivalent.
func Key(endpoint string, params Params) string {
	if len(params) == 0 {
		return endpoint + ":{}"
	}
	b, err := json.Marshal(params)
	if err != nil {
		// Unserializable values (funcs, channels) still get a stable key;
		// fmt prints maps in sorted key order.
		return endpoint + ":" + fmt.Sprint(map[string]any(params))
	}
	return endpoint + ":" + string(b)
}
