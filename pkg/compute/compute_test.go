// Copyright (c) Facebook, Inc. and its affiliates.
//
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package compute

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMachineType(t *testing.T) {
	assert.Equal(t, "n2-standard-16", MachineType("16"))
	assert.Equal(t, "n2-standard-96", MachineType("96"))
	assert.Equal(t, DefaultMachineType, MachineType("12"))
	assert.Equal(t, DefaultMachineType, MachineType(""))
}

func TestInstanceAddress(t *testing.T) {
	i := &Instance{ExternalIP: "34.1.2.3", InternalIP: "10.0.0.2"}
	assert.Equal(t, "34.1.2.3", i.Address())
	i.ExternalIP = ""
	assert.Equal(t, "10.0.0.2", i.Address())
}
