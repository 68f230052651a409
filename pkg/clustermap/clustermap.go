// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

// Package clustermap describes the topology the frontend routes against:
// datanodes, partitions and the replicas binding the two together.
package clustermap

import (
	"fmt"

	"github.com/zeebo/errs"
)

// Error is the errs class of clustermap errors.
var Error = errs.Class("clustermap error")

// PartitionID identifies a replica set.
type PartitionID uint64

func (id PartitionID) String() string {
	return fmt.Sprintf("partition-%d", uint64(id))
}

// DataNode is a storage server that hosts replicas.
type DataNode struct {
	Hostname   string
	Port       int
	Datacenter string
}

// Addr returns the host:port form used to dial the node.
func (n *DataNode) Addr() string {
	return fmt.Sprintf("%s:%d", n.Hostname, n.Port)
}

func (n *DataNode) String() string { return n.Addr() }

// Replica binds a partition to the datanode holding one copy of it.
type Replica struct {
	partition *Partition
	node      *DataNode
}

// Partition returns the partition this replica belongs to.
func (r *Replica) Partition() *Partition { return r.partition }

// Node returns the datanode hosting this replica.
func (r *Replica) Node() *DataNode { return r.node }

func (r *Replica) String() string {
	return fmt.Sprintf("%s/%s", r.node.Addr(), r.partition.ID())
}

// Partition is one replica set. The replica order is stable for the life
// of the map; operations try replicas in this order.
type Partition struct {
	id       PartitionID
	writable bool
	replicas []*Replica
}

// ID returns the partition id.
func (p *Partition) ID() PartitionID { return p.id }

// Writable reports whether new blobs may be placed on this partition.
func (p *Partition) Writable() bool { return p.writable }

// Replicas returns the partition's replicas in cluster-map order.
// Callers must not mutate the returned slice.
func (p *Partition) Replicas() []*Replica { return p.replicas }

// Map is the read view of the cluster the frontend and router consume.
// Implementations must be safe for concurrent read.
type Map interface {
	// Datacenter is the name of the local datacenter.
	Datacenter() string
	// DatacenterID is the wire id of the local datacenter, embedded in
	// minted blob ids.
	DatacenterID() uint8
	// PartitionByID resolves a partition or fails for unknown ids.
	PartitionByID(id PartitionID) (*Partition, error)
	// WritablePartitions lists partitions accepting new blobs.
	WritablePartitions() []*Partition
	// DataNode resolves a datanode by hostname and port.
	DataNode(hostname string, port int) (*DataNode, error)
	// Peers lists the other datanodes that share a partition with node.
	Peers(node *DataNode) []*DataNode
}
