package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

func snowflakeNode() *snowflake.Node {
	nodeOnce.Do(func() {
		id := int64(1)
		if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
			if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
				id = parsed
			}
		}
		n, err := snowflake.NewNode(id)
		if err != nil {
			// out-of-range node id from env; node 1 is always valid
			n, _ = snowflake.NewNode(1)
		}
		node = n
	})
	return node
}

// NewRowID generates an int64 snowflake id for app-assigned primary keys.
func NewRowID() int64 {
	return snowflakeNode().Generate().Int64()
}
