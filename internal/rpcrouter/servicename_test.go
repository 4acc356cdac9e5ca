package rpcrouter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceNameSanitizesAppName(t *testing.T) {
	assert.Equal(t, "CellController", ServiceName("cell controller"))
	assert.Equal(t, "CellController", ServiceName("cell-controller"))
	assert.Equal(t, "Cell2Go", ServiceName("cell_2_go"))
}

func TestServiceNameFallsBackWhenNothingAlphanumeric(t *testing.T) {
	assert.Equal(t, defaultServiceName, ServiceName(""))
	assert.Equal(t, defaultServiceName, ServiceName("---"))
}

func TestServiceFQNWrapsServiceName(t *testing.T) {
	assert.Equal(t, "vention.app.v1.CellrtServiceService", ServiceFQN("cellrt service"))
	assert.Equal(t, "vention.app.v1.VentionAppService", ServiceFQN(""))
}
