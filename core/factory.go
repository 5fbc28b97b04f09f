/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package core

// defaultBucketFactory is the stock BucketFactory: a plain
// BucketAttachment wired to the handshake collaborator and logger the
// core itself was constructed with. Swappable via Services.Buckets for
// tests that need to observe or fail construction.
type defaultBucketFactory struct {
	handshake BucketHandshake
	log       Logger
}

func NewDefaultBucketFactory(handshake BucketHandshake, log Logger) BucketFactory {
	return &defaultBucketFactory{handshake: handshake, log: log}
}

func (f *defaultBucketFactory) Create(name, bucketType string) *BucketAttachment {
	return newBucketAttachment(name, bucketType, f.handshake, f.log)
}
