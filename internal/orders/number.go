package orders

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// NumberGenerator hands out short, unique, time-ordered order numbers.
type NumberGenerator struct {
	node *snowflake.Node
}

// NewNumberGenerator needs a node id unique per running process (0-1023).
func NewNumberGenerator(nodeID int64) (*NumberGenerator, error) {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &NumberGenerator{node: n}, nil
}

// Next returns e.g. "RL-1A2B3C4D5E6F".
func (g *NumberGenerator) Next() string {
	return "RL-" + strings.ToUpper(g.node.Generate().Base36())
}
