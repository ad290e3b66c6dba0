/*
Package s3 provides a high-performance AWS S3 backend with CargoShip optimization and advanced storage tier management.

This package implements the core object storage functionality for s3treefs, featuring comprehensive S3 integration
with multi-tier storage support, cost optimization, and performance enhancements through CargoShip integration
that delivers up to 4.6x performance improvements over standard S3 operations.

# Architecture Overview

The S3 backend provides multiple layers of functionality:

	┌─────────────────────────────────────────────────────────────┐
	│                   s3treefs Interface                       │
	│              (types.Backend Implementation)                │
	└─────────────────────────────────────────────────────────────┘
	                          │
	┌─────────────────────────────────────────────────────────────┐
	│                    S3 Backend Layer                        │
	│  ┌─────────────────┐ ┌──────────────┐ ┌─────────────────┐  │
	│  │  Cost Optimizer │ │ Tier Manager │ │ Pricing Manager │  │
	│  └─────────────────┘ └──────────────┘ └─────────────────┘  │
	└─────────────────────────────────────────────────────────────┘
	                          │
	┌─────────────────────────────────────────────────────────────┐
	│              CargoShip Transporter                          │
	│         (4.6x Performance Optimization)                    │
	└─────────────────────────────────────────────────────────────┘
	                          │
	┌─────────────────────────────────────────────────────────────┐
	│                 AWS S3 Service                             │
	│    Connection Pool  │  Multiple Regions  │  Storage Tiers  │
	└─────────────────────────────────────────────────────────────┘

# CargoShip Integration

The backend leverages CargoShip optimization for significant performance improvements:

Performance Benefits:
- 4.6x faster upload speeds through intelligent chunking
- Optimized connection pooling and reuse
- Advanced retry logic with exponential backoff
- Intelligent multipart upload optimization
- Reduced API call overhead through batching

CargoShip Features:
- Automatic optimal chunk size calculation
- Concurrent upload streams with load balancing
- Smart failure detection and recovery
- Regional endpoint optimization
- Bandwidth-aware throttling

# Storage Tier Management

Comprehensive support for all AWS S3 storage classes:

Standard Tier (STANDARD):
- Instant access, no retrieval costs
- Recommended for frequently accessed data
- No minimum object size or storage duration
- Cost: ~$0.023/GB/month

Standard-IA (STANDARD_IA):
- Instant access with retrieval costs
- 128KB minimum object size
- 30-day minimum storage duration
- Cost: ~$0.0125/GB/month + $0.01/GB retrieval

One Zone-IA (ONEZONE_IA):
- Single availability zone storage
- Lower cost than Standard-IA
- Same constraints as Standard-IA
- Cost: ~$0.01/GB/month + $0.01/GB retrieval

Glacier Instant Retrieval (GLACIER_IR):
- Instant access for archive data
- 128KB minimum object size
- 90-day minimum storage duration
- Cost: ~$0.004/GB/month + $0.03/GB retrieval

Glacier Flexible Retrieval (GLACIER):
- Minutes to hours retrieval time
- 40KB minimum object size
- 90-day minimum storage duration
- Cost: ~$0.0036/GB/month + variable retrieval

Deep Archive (DEEP_ARCHIVE):
- Lowest cost, hours for retrieval
- 40KB minimum object size
- 180-day minimum storage duration
- Cost: ~$0.00099/GB/month + variable retrieval

Intelligent Tiering (INTELLIGENT_TIERING):
- Automatic tier optimization
- No retrieval charges
- Monitoring charges apply
- Cost: ~$0.023/GB/month + $0.0025/1000 objects

# Cost Optimization

Advanced cost optimization capabilities:

Intelligent Tier Selection:
The system analyzes access patterns and automatically recommends optimal storage tiers:

	// Analyze object for optimal tier
	optimizer := &CostOptimizer{backend: s3Backend}
	
	pattern := &AccessPattern{
		ObjectSize:   1024 * 1024, // 1MB
		AccessCount:  5,
		LastAccess:   time.Now().Add(-30 * 24 * time.Hour),
	}
	
	optimization := optimizer.AnalyzeObject(pattern)
	fmt.Printf("Recommended tier: %s", optimization.RecommendedTier)
	fmt.Printf("Potential savings: $%.2f/month", optimization.MonthlySavings)

Enterprise Pricing Support:
- Volume discount calculation
- Reserved capacity pricing
- Custom enterprise rates
- Multi-region cost analysis

# Configuration

Flexible configuration options:

	config := &s3.Config{
		Region:   "us-west-2",
		Endpoint: "", // Use default AWS
		
		// CargoShip Optimization
		EnableCargoShipOptimization: true,
		OptimizationLevel:           "aggressive",

		// Connection Pool
		PoolSize:       10,
		ConnectTimeout: 30 * time.Second,

		// Storage Tiers
		StorageTier: s3.TierStandard,
		CostOptimization: s3.CostOptimization{
			EnableAutoTiering: true,
		},

		// Enterprise Pricing
		PricingConfig: s3.PricingConfig{
			DiscountConfig: s3.DiscountConfig{
				EnterpriseDiscount:    15.0, // 15% discount
				EnableVolumeDiscounts: true,
			},
		},
	}

# Usage Examples

Basic backend initialization:

	backend, err := s3.NewBackend(ctx, "my-bucket", config)
	if err != nil {
		log.Fatal(err)
	}
	defer backend.Close()

Object operations with automatic optimization:

	// Put object with automatic tier selection
	err := backend.PutObject(ctx, "data/file.txt", data)
	
	// Get object (reads use a pooled client, not CargoShip)
	data, err := backend.GetObject(ctx, "data/file.txt", 0, -1)
	
	// Head object for metadata
	info, err := backend.HeadObject(ctx, "data/file.txt")

Batch operations for improved performance:

	// Batch get operations
	keys := []string{"file1.txt", "file2.txt", "file3.txt"}
	results, err := backend.GetObjects(ctx, keys)
	
	// Batch put operations
	objects := map[string][]byte{
		"file1.txt": data1,
		"file2.txt": data2,
	}
	err = backend.PutObjects(ctx, objects)

# Performance Optimization

Multi-level performance optimizations:

CargoShip Integration:
- Used for PutObject uploads when EnableCargoShipOptimization is set; reads do not use it
- Intelligent chunk size calculation
- Concurrent stream optimization
- Advanced retry mechanisms

Connection Pooling:
- Configurable pool size (default: 8 connections)
- Health monitoring and replacement
- Load balancing across connections
- Connection lifetime management

Tier-Aware Operations:
- Automatic tier detection
- Optimized operations based on storage class
- Retrieval cost prediction
- Access pattern learning

# Enterprise Features

Advanced enterprise capabilities:

Cost Management:
- Real-time cost tracking
- Budget alerts and controls
- Cost attribution by application/team
- Reserved capacity optimization

Multi-Region Support:
- Cross-region replication
- Regional failover
- Latency-based routing
- Cost-optimized regional storage

Security Integration:
- IAM role integration
- KMS encryption support
- VPC endpoint compatibility
- Access logging and monitoring

# Monitoring and Observability

Comprehensive monitoring integration:

Metrics Collection:
- Operation latency and throughput
- Error rates and retry statistics
- Cost tracking and attribution
- Storage tier utilization

Health Monitoring:
- Connection pool health
- Service availability checks
- Performance degradation detection
- Automatic recovery triggers

Alerting:
- Cost threshold violations
- Performance anomaly detection
- Tier optimization opportunities
- Error rate escalations

# Error Handling

Robust error handling and recovery:

Transient Error Recovery:
- Exponential backoff retry logic
- Circuit breaker patterns
- Connection pool failover
- Graceful degradation

Permanent Error Handling:
- Clear error categorization
- Detailed error context
- Recovery recommendations
- Operational guidance

# Thread Safety

The backend is designed for concurrent access:

- All public methods are thread-safe
- Internal state is protected with appropriate synchronization
- Connection pool handles concurrent requests
- Statistics are updated under a mutex

# Storage Classes Summary

Quick reference for S3 storage classes:

| Tier | Access | Min Size | Min Duration | Use Case | Cost/GB |
|------|--------|----------|--------------|----------|---------|
| Standard | Instant | None | None | Frequent | $0.023 |
| Standard-IA | Instant | 128KB | 30 days | Infrequent | $0.0125 |
| One Zone-IA | Instant | 128KB | 30 days | Non-critical | $0.01 |
| Glacier IR | Instant | 128KB | 90 days | Archive + instant | $0.004 |
| Glacier | Minutes-Hours | 40KB | 90 days | Long-term archive | $0.0036 |
| Deep Archive | Hours | 40KB | 180 days | Very long-term | $0.00099 |
| Intelligent | Variable | 128KB | None | Auto-optimize | Variable |

This package provides enterprise-grade S3 integration with advanced optimization,
comprehensive cost management, and high-performance operation capabilities.
*/
package s3