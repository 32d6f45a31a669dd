package output

import (
	"errors"
	"fmt"

	"github.com/itchyny/gojq"
)

// applyJQ runs expr against the JSON form of v and collects every result.
func applyJQ(expr string, v any) ([]any, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, ErrUsageHint(fmt.Sprintf("Invalid --jq expression: %s", expr), err.Error())
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, ErrUsageHint(fmt.Sprintf("Invalid --jq expression: %s", expr), err.Error())
	}

	var results []any
	iter := code.Run(NormalizeData(v))
	for {
		r, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := r.(error); isErr {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				break
			}
			return nil, ErrUsageHint("--jq evaluation failed", err.Error())
		}
		results = append(results, r)
	}
	return results, nil
}
