// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"

	"github.com/rillrate-fossil/rillrate-sub001/flow"
	"github.com/rillrate-fossil/rillrate-sub001/ref"
)

// Version is the provider link protocol version. A node refuses
// providers that speak another version.
const Version = 1

// ProviderKind selects what a ProviderMessage carries.
type ProviderKind uint8

const (
	// ProviderHello opens the link: Name and Version.
	ProviderHello ProviderKind = iota + 1
	// ProviderDescribe announces Description.
	ProviderDescribe
	// ProviderForget withdraws Path.
	ProviderForget
	// ProviderResponse answers a relayed request.
	ProviderResponse
)

func (k ProviderKind) String() string {
	switch k {
	case ProviderHello:
		return "hello"
	case ProviderDescribe:
		return "describe"
	case ProviderForget:
		return "forget"
	case ProviderResponse:
		return "response"
	default:
		return fmt.Sprintf("provider(%d)", uint8(k))
	}
}

// ProviderMessage is a provider-to-node frame.
type ProviderMessage struct {
	Kind        ProviderKind      `cbor:"kind"`
	Name        string            `cbor:"name,omitempty"`
	Version     int               `cbor:"version,omitempty"`
	Description *flow.Description `cbor:"description,omitempty"`
	Path        *ref.Path         `cbor:"path,omitempty"`
	Response    *Response         `cbor:"response,omitempty"`
}

// Hello builds the opening message of a provider.
func Hello(name string) ProviderMessage {
	return ProviderMessage{Kind: ProviderHello, Name: name, Version: Version}
}

// Describe builds a path announcement.
func Describe(description flow.Description) ProviderMessage {
	return ProviderMessage{Kind: ProviderDescribe, Description: &description}
}

// Forget builds a path withdrawal.
func Forget(path ref.Path) ProviderMessage {
	return ProviderMessage{Kind: ProviderForget, Path: &path}
}

// Reply wraps response for the node.
func Reply(response Response) ProviderMessage {
	return ProviderMessage{Kind: ProviderResponse, Response: &response}
}

// NodeKind selects what a NodeMessage carries.
type NodeKind uint8

const (
	// NodeWelcome accepts the provider. Message holds the node's
	// name for logs.
	NodeWelcome NodeKind = iota + 1
	// NodeReject refuses the provider; Message says why. The node
	// closes the link right after.
	NodeReject
	// NodeRequest relays Request to the provider.
	NodeRequest
)

func (k NodeKind) String() string {
	switch k {
	case NodeWelcome:
		return "welcome"
	case NodeReject:
		return "reject"
	case NodeRequest:
		return "request"
	default:
		return fmt.Sprintf("node(%d)", uint8(k))
	}
}

// NodeMessage is a node-to-provider frame.
type NodeMessage struct {
	Kind    NodeKind `cbor:"kind"`
	Message string   `cbor:"message,omitempty"`
	Request *Request `cbor:"request,omitempty"`
}

// Welcome builds the acceptance message.
func Welcome(node string) NodeMessage {
	return NodeMessage{Kind: NodeWelcome, Message: node}
}

// Reject builds the refusal message.
func Reject(reason string) NodeMessage {
	return NodeMessage{Kind: NodeReject, Message: reason}
}

// Relay wraps request for the provider.
func Relay(request Request) NodeMessage {
	return NodeMessage{Kind: NodeRequest, Request: &request}
}
