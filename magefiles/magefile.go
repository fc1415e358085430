// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for the arcstore project using Mage.
//
// Usage:
//
//	mage build          Compile the arcstore binary to bin/
//	mage test:all       Run all tests
//	mage test:unit      Run tests without the CLI end-to-end tests
//	mage test:race      Run all tests with the race detector
//	mage test:cover     Write a coverage profile to bin/coverage.out
//	mage test:golden    Regenerate golden files
//	mage lint           Run golangci-lint
//	mage vet            Run go vet
//	mage clean          Remove build artifacts
//	mage install        Install arcstore to GOPATH/bin
//	mage stats          Print Go LOC and documentation word counts
package main
