// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package membuf

// noCopy is a sentinel used to prevent copying of synchronization primitives.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
