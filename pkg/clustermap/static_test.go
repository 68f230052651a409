// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package clustermap_test

import (
	"io/ioutil"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ambry.io/ambry/internal/testcontext"
	"ambry.io/ambry/pkg/clustermap"
)

func testLayout() clustermap.Layout {
	return clustermap.Layout{
		Datacenter:   "dc1",
		DatacenterID: 1,
		Nodes: []clustermap.NodeSpec{
			{Hostname: "host1", Port: 1180, Datacenter: "dc1"},
			{Hostname: "host2", Port: 1180, Datacenter: "dc1"},
			{Hostname: "host3", Port: 1180, Datacenter: "dc2"},
			{Hostname: "lonely", Port: 1180, Datacenter: "dc2"},
		},
		Partitions: []clustermap.PartitionSpec{
			{ID: 1, Writable: true, Replicas: []string{"host1:1180", "host2:1180", "host3:1180"}},
			{ID: 2, Writable: false, Replicas: []string{"host1:1180", "host2:1180"}},
			{ID: 3, Writable: true, Replicas: []string{"lonely:1180"}},
		},
	}
}

func TestStaticMap(t *testing.T) {
	m, err := clustermap.New(testLayout())
	require.NoError(t, err)

	assert.Equal(t, "dc1", m.Datacenter())
	assert.Equal(t, uint8(1), m.DatacenterID())

	partition, err := m.PartitionByID(1)
	require.NoError(t, err)
	assert.Equal(t, clustermap.PartitionID(1), partition.ID())
	assert.Equal(t, "partition-1", partition.ID().String())
	assert.True(t, partition.Writable())
	require.Len(t, partition.Replicas(), 3)
	assert.Equal(t, "host1:1180/partition-1", partition.Replicas()[0].String())

	_, err = m.PartitionByID(42)
	assert.Error(t, err)

	writable := m.WritablePartitions()
	require.Len(t, writable, 2)
	assert.Equal(t, clustermap.PartitionID(1), writable[0].ID())
	assert.Equal(t, clustermap.PartitionID(3), writable[1].ID())

	node, err := m.DataNode("host1", 1180)
	require.NoError(t, err)
	assert.Equal(t, "host1:1180", node.Addr())

	_, err = m.DataNode("nosuch", 1180)
	assert.Error(t, err)
}

func TestStaticMapPeers(t *testing.T) {
	m, err := clustermap.New(testLayout())
	require.NoError(t, err)

	node, err := m.DataNode("host1", 1180)
	require.NoError(t, err)

	peers := m.Peers(node)
	require.Len(t, peers, 2)
	assert.Equal(t, "host2:1180", peers[0].Addr())
	assert.Equal(t, "host3:1180", peers[1].Addr())

	// a node that shares no partition has no peers
	lonely, err := m.DataNode("lonely", 1180)
	require.NoError(t, err)
	assert.Empty(t, m.Peers(lonely))
}

func TestStaticMapValidation(t *testing.T) {
	layout := testLayout()
	layout.Partitions[0].Replicas = nil
	_, err := clustermap.New(layout)
	assert.Error(t, err)

	layout = testLayout()
	layout.Partitions[0].Replicas = []string{"unknown:9999"}
	_, err = clustermap.New(layout)
	assert.Error(t, err)

	layout = testLayout()
	layout.Nodes = append(layout.Nodes, layout.Nodes[0])
	_, err = clustermap.New(layout)
	assert.Error(t, err)

	layout = testLayout()
	layout.Datacenter = ""
	_, err = clustermap.New(layout)
	assert.Error(t, err)
}

func TestNewFromFile(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	path := ctx.File("cluster", "layout.json")
	layout := `{
		"datacenter": "dc1",
		"datacenterId": 3,
		"nodes": [
			{"hostname": "host1", "port": 1180, "datacenter": "dc1"},
			{"hostname": "host2", "port": 1180, "datacenter": "dc1"}
		],
		"partitions": [
			{"id": 7, "writable": true, "replicas": ["host1:1180", "host2:1180"]}
		]
	}`
	require.NoError(t, ioutil.WriteFile(path, []byte(layout), 0644))

	m, err := clustermap.NewFromFile(zaptest.NewLogger(t), path)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), m.DatacenterID())

	partition, err := m.PartitionByID(7)
	require.NoError(t, err)
	assert.Len(t, partition.Replicas(), 2)

	_, err = clustermap.NewFromFile(zaptest.NewLogger(t), ctx.File("cluster", "missing.json"))
	assert.Error(t, err)

	bad := ctx.File("cluster", "bad.json")
	require.NoError(t, ioutil.WriteFile(bad, []byte("{"), 0644))
	_, err = clustermap.NewFromFile(zaptest.NewLogger(t), bad)
	assert.Error(t, err)
}
