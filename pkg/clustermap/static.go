// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package clustermap

import (
	"encoding/json"
	"io/ioutil"
	"net"
	"sort"
	"strconv"

	"go.uber.org/zap"
)

// Layout is the JSON form of a static cluster map:
//
//	{
//	  "datacenter": "dc1",
//	  "datacenterId": 1,
//	  "nodes": [{"hostname": "host1", "port": 1180, "datacenter": "dc1"}],
//	  "partitions": [
//	    {"id": 7, "writable": true, "replicas": ["host1:1180", "host2:1180"]}
//	  ]
//	}
type Layout struct {
	Datacenter   string          `json:"datacenter"`
	DatacenterID uint8           `json:"datacenterId"`
	Nodes        []NodeSpec      `json:"nodes"`
	Partitions   []PartitionSpec `json:"partitions"`
}

// NodeSpec declares one datanode.
type NodeSpec struct {
	Hostname   string `json:"hostname"`
	Port       int    `json:"port"`
	Datacenter string `json:"datacenter"`
}

// PartitionSpec declares one partition and its replica placement as
// host:port references into Nodes.
type PartitionSpec struct {
	ID       uint64   `json:"id"`
	Writable bool     `json:"writable"`
	Replicas []string `json:"replicas"`
}

// StaticMap is an immutable Map built from a Layout. Being immutable it
// is safe for concurrent read.
type StaticMap struct {
	datacenter   string
	datacenterID uint8

	nodes      map[string]*DataNode
	nodeList   []*DataNode
	partitions map[PartitionID]*Partition
	writable   []*Partition
	peers      map[string][]*DataNode
}

// New builds a StaticMap from a layout literal.
func New(layout Layout) (*StaticMap, error) {
	if layout.Datacenter == "" {
		return nil, Error.New("layout names no datacenter")
	}
	if len(layout.Nodes) == 0 {
		return nil, Error.New("layout has no datanodes")
	}

	m := &StaticMap{
		datacenter:   layout.Datacenter,
		datacenterID: layout.DatacenterID,
		nodes:        make(map[string]*DataNode, len(layout.Nodes)),
		partitions:   make(map[PartitionID]*Partition, len(layout.Partitions)),
		peers:        make(map[string][]*DataNode),
	}

	for _, spec := range layout.Nodes {
		node := &DataNode{Hostname: spec.Hostname, Port: spec.Port, Datacenter: spec.Datacenter}
		if node.Hostname == "" || node.Port <= 0 {
			return nil, Error.New("invalid datanode %q", node.Addr())
		}
		if _, exists := m.nodes[node.Addr()]; exists {
			return nil, Error.New("duplicate datanode %q", node.Addr())
		}
		m.nodes[node.Addr()] = node
		m.nodeList = append(m.nodeList, node)
	}

	for _, spec := range layout.Partitions {
		id := PartitionID(spec.ID)
		if _, exists := m.partitions[id]; exists {
			return nil, Error.New("duplicate %s", id)
		}
		if len(spec.Replicas) == 0 {
			return nil, Error.New("%s has no replicas", id)
		}
		partition := &Partition{id: id, writable: spec.Writable}
		for _, addr := range spec.Replicas {
			node, err := m.nodeByAddr(addr)
			if err != nil {
				return nil, err
			}
			partition.replicas = append(partition.replicas, &Replica{partition: partition, node: node})
		}
		m.partitions[id] = partition
		if partition.writable {
			m.writable = append(m.writable, partition)
		}
	}
	sort.Slice(m.writable, func(i, j int) bool { return m.writable[i].id < m.writable[j].id })

	m.derivePeers()
	return m, nil
}

// NewFromFile builds a StaticMap from a JSON layout file.
func NewFromFile(log *zap.Logger, path string) (*StaticMap, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	var layout Layout
	if err := json.Unmarshal(data, &layout); err != nil {
		return nil, Error.New("malformed layout %q: %v", path, err)
	}
	m, err := New(layout)
	if err != nil {
		return nil, err
	}
	log.Info("cluster map loaded",
		zap.String("datacenter", m.datacenter),
		zap.Int("nodes", len(m.nodeList)),
		zap.Int("partitions", len(m.partitions)))
	return m, nil
}

func (m *StaticMap) nodeByAddr(addr string) (*DataNode, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, Error.New("invalid replica address %q: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, Error.New("invalid replica port %q", addr)
	}
	node, ok := m.nodes[(&DataNode{Hostname: host, Port: port}).Addr()]
	if !ok {
		return nil, Error.New("replica names unknown datanode %q", addr)
	}
	return node, nil
}

// peers of a node are all other nodes sharing at least one partition.
func (m *StaticMap) derivePeers() {
	sets := make(map[string]map[string]*DataNode)
	for _, partition := range m.partitions {
		for _, a := range partition.replicas {
			for _, b := range partition.replicas {
				if a.node == b.node {
					continue
				}
				set, ok := sets[a.node.Addr()]
				if !ok {
					set = make(map[string]*DataNode)
					sets[a.node.Addr()] = set
				}
				set[b.node.Addr()] = b.node
			}
		}
	}
	for addr, set := range sets {
		peers := make([]*DataNode, 0, len(set))
		for _, node := range set {
			peers = append(peers, node)
		}
		sort.Slice(peers, func(i, j int) bool { return peers[i].Addr() < peers[j].Addr() })
		m.peers[addr] = peers
	}
}

// Datacenter implements Map.
func (m *StaticMap) Datacenter() string { return m.datacenter }

// DatacenterID implements Map.
func (m *StaticMap) DatacenterID() uint8 { return m.datacenterID }

// PartitionByID implements Map.
func (m *StaticMap) PartitionByID(id PartitionID) (*Partition, error) {
	partition, ok := m.partitions[id]
	if !ok {
		return nil, Error.New("unknown %s", id)
	}
	return partition, nil
}

// WritablePartitions implements Map.
func (m *StaticMap) WritablePartitions() []*Partition { return m.writable }

// DataNode implements Map.
func (m *StaticMap) DataNode(hostname string, port int) (*DataNode, error) {
	node, ok := m.nodes[(&DataNode{Hostname: hostname, Port: port}).Addr()]
	if !ok {
		return nil, Error.New("unknown datanode %s:%d", hostname, port)
	}
	return node, nil
}

// Peers implements Map.
func (m *StaticMap) Peers(node *DataNode) []*DataNode {
	return m.peers[node.Addr()]
}

// Nodes returns every datanode in the map.
func (m *StaticMap) Nodes() []*DataNode { return m.nodeList }
