/*
Package fuse provides cross-platform FUSE filesystem implementation for s3treefs.

This package implements POSIX-compliant filesystem operations that translate standard
file and directory operations into object storage operations. It supports multiple
FUSE implementations through build constraints, providing optimal performance and
compatibility across Linux, macOS, and Windows platforms.

# Architecture Overview

The FUSE layer acts as the bridge between POSIX applications and object storage:

	┌─────────────────────────────────────────────┐
	│              User Applications              │
	│        (ls, cat, cp, vim, databases)       │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│              Kernel VFS Layer              │
	│           (POSIX System Calls)             │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│               FUSE Driver                   │
	│          (Platform-specific)               │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│            s3treefs FUSE Layer              │  ← This Package
	│  ┌─────────────────────────────────────────┐  │
	│  │        Cross-Platform Abstraction      │  │
	│  │  ┌─────────────┐ ┌─────────────────┐   │  │
	│  │  │ go-fuse     │ │ cgofuse         │   │  │
	│  │  │ (Linux)     │ │ (macOS/Windows) │   │  │
	│  │  └─────────────┘ └─────────────────┘   │  │
	│  └─────────────────────────────────────────┘  │
	│                     │                       │
	│  ┌─────────────────────────────────────────┐  │
	│  │         POSIX Operation Layer          │  │
	│  │  • File Operations  • Directory Ops   │  │
	│  │  • Metadata Ops     • Permission Mgmt │  │
	│  └─────────────────────────────────────────┘  │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│             Object Storage Backend          │
	│         (S3, GCS, Azure, etc.)            │
	└─────────────────────────────────────────────┘

# Platform Support

Multi-platform FUSE implementation with build constraints:

Default Build (go-fuse):
- Target: Linux (primary platform)
- Implementation: github.com/hanwen/go-fuse/v2
- Performance: Optimal for Linux environments
- Features: Full POSIX compliance, high performance

CGO Build (cgofuse):
- Target: macOS, Windows, Linux (fallback)
- Implementation: github.com/winfsp/cgofuse
- Performance: Cross-platform compatibility
- Features: Broader OS support, consistent behavior

Build Selection:
	// Linux with high performance
	go build -tags default ./...
	
	// Cross-platform compatibility
	go build -tags cgofuse ./...

# FileSystem Operations

Operations implemented by the go-fuse adapter (FileSystem):

File Operations:
- Create, Open, Read, Write, Flush, Release - file I/O (Flush is a no-op; data is
  uploaded on Release)
- SetAttr - mode changes and truncation by size

Directory Operations:
- OpenDir, ReadDir, ReleaseDir - directory enumeration
- Mkdir, Rmdir - directory creation and removal
- Rename - file and directory renaming

Metadata Operations:
- Lookup, GetAttr - metadata retrieval
- Symlink, Readlink - symbolic links
- GetXAttr - reading extended attributes
- StatFs - filesystem statistics

Every other kernel operation (Link, SetXAttr, ListXAttr, RemoveXAttr, Fsync, file
locking, ownership and timestamp changes) falls through to go-fuse's default and answers
ENOSYS. The cgofuse adapter (CgoFuseFS) implements a smaller set: Getattr, Mkdir, Rmdir,
Unlink, Rename, Create, Open, Read, Write, Release and Readdir.

# Configuration

Flexible mount configuration options:

	config := &fuse.MountConfig{
		MountPoint: "/mnt/s3treefs",
		Options: &fuse.MountOptions{
			ReadOnly:     false,
			AllowOther:   true,
			AllowRoot:    false,
			
			// Performance tuning
			MaxRead:      128 * 1024,  // 128KB read buffer
			MaxWrite:     128 * 1024,  // 128KB write buffer
			
			// Caching
			AttrTimeout:  5 * time.Second,
			EntryTimeout: 10 * time.Second,
			
			// Platform-specific
			FSName:       "s3treefs",
			Subtype:      "s3",
		},
		Permissions: &fuse.Permissions{
			UID:      1000,
			GID:      1000,
			FileMode: 0644,
			DirMode:  0755,
		},
	}

# Usage Examples

Basic filesystem mounting:

	// Create filesystem over an already-constructed Orchestrator
	filesystem := fuse.NewFileSystem(orch, config)

	// Create mount manager (a nil metrics collector mounts without metrics)
	mountManager := fuse.CreatePlatformMountManager(orch, mountConfig, nil)
	
	// Mount filesystem
	err := mountManager.Mount(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer mountManager.Unmount()

File operations through mounted filesystem:

	// Standard POSIX operations work transparently
	
	// Create file
	file, err := os.Create("/mnt/s3treefs/data.txt")
	if err != nil {
		log.Fatal(err)
	}
	
	// Write data
	_, err = file.WriteString("Hello, s3treefs!")
	if err != nil {
		log.Fatal(err)
	}
	file.Close()
	
	// Read file
	data, err := os.ReadFile("/mnt/s3treefs/data.txt")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Content: %s\n", data)

Directory operations:

	// Create directory
	err := os.Mkdir("/mnt/s3treefs/logs", 0755)
	
	// List directory contents
	entries, err := os.ReadDir("/mnt/s3treefs")
	for _, entry := range entries {
		info, _ := entry.Info()
		fmt.Printf("%s %d %v\n", 
			entry.Name(), 
			info.Size(), 
			info.ModTime())
	}

# Performance Optimizations

Caching and write buffering live below this package, in the Orchestrator's own
collaborators, not in the FUSE adapter itself:

Intelligent Caching:
- Metadata and directory-entry caching with age-based TTL (internal/tree, driven by the Orchestrator)
- Negative caching for non-existent names
- Directory listing snapshots reused across opens until expiry

Write Optimization:
- Per-inode write buffering and flush-on-close (internal/buffer)
- Multipart upload for large files (internal/buffer)

Connection Management:
- Connection pooling for concurrent operations
- Automatic retry with exponential backoff
- Health monitoring and failover

# Object Storage Mapping

Translation between POSIX and object storage concepts:

Files to Objects:
- File path → Object key
- File content → Object data
- File metadata → Object metadata/tags
- File permissions → Mapped to metadata

Directories to Virtual Structure:
- Directory paths → Object key prefixes
- Directory listings → Prefix-based object enumeration
- Directory metadata → Synthetic metadata generation
- Empty directories → Zero-byte marker objects

Special Files:
- Symbolic links → Stored as an object whose body is the link target
- Hard links → Not supported (Link answers ENOSYS)
- Device files → Not supported (returns appropriate errors)
- Named pipes → Not supported (returns appropriate errors)

# Permission Model

POSIX permission mapping to object storage:

Permission Storage:
- POSIX permissions stored in object metadata
- Owner and group are not stored: every entry reports Config.DefaultUID and
  Config.DefaultGID
- No ACL mapping and no ownership changes

Default Behavior:
- Configurable default UID/GID for all operations
- Consistent permission model across platforms
- Support for umask-style permission masking
- Administrative override capabilities

Security Considerations:
- Object storage credential-based access control
- FUSE-level permission enforcement
- Configurable access restrictions (allow_other, allow_root)
- Secure credential handling and rotation

# Error Handling

Comprehensive error handling and translation:

POSIX Error Mapping:
- Object storage errors → Standard errno values
- Network errors → EIO (I/O error)
- Permission errors → EACCES (Permission denied)
- Not found errors → ENOENT (No such file or directory)

Retry Logic:
- Transient error automatic retry
- Exponential backoff strategies
- Circuit breaker for persistent failures
- Graceful degradation modes

Error Recovery:
- Connection failure recovery
- Partial operation cleanup
- Consistent state maintenance
- User notification strategies

# Statistics and Monitoring

Comprehensive operation monitoring:

Operation Metrics:
- File operation counters (reads, writes, opens, closes)
- Throughput measurements (bytes/second)
- Latency distributions (operation duration)
- Error rate tracking

Cache Metrics:
- Cache hit/miss ratios
- Cache utilization statistics
- Eviction rates and patterns
- Cache effectiveness analysis

Performance Metrics:
- Concurrent operation tracking
- Queue depth monitoring
- Resource utilization (memory, connections)
- Background operation progress

Health Monitoring:
- Mount status verification
- Backend connectivity checks
- Performance threshold monitoring
- Automated health recovery

# Thread Safety

Designed for high-concurrency operation:

- All FUSE operations are inherently concurrent
- Thread-safe internal data structures
- Proper synchronization for shared resources
- Lock-free data paths where possible
- Connection pool thread safety

# Platform-Specific Features

The cgofuse build adds a volname mount option on macOS and a FileSystemName option on
Windows, chosen from the GOOS environment variable at mount time. There is no other
platform-specific handling; both builds share the same Orchestrator and error mapping.

This package provides the critical bridge between standard POSIX applications
and modern object storage systems, enabling transparent, high-performance
access to cloud storage through familiar filesystem interfaces.
*/
package fuse