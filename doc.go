// Package unzipbot unpacks untrusted ZIP archives into per-owner sandbox
// directories and classifies the extracted media.
//
// Every request goes through three stages. The archive's central directory is
// checked against [SafetyLimits] without decompressing anything; the entries
// are then streamed into destRoot/<owner>/<token> under sanitized, collision
// free names; finally the written paths are bucketed into videos and images.
//
// # Basic Usage
//
//	p, err := unzipbot.NewPipeline("/var/lib/unzipbot/extracted",
//	    unzipbot.WithLimits(unzipbot.DefaultLimits()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res := p.ExtractArchive(ctx, unzipbot.ExtractionRequest{
//	    SourcePath: "/tmp/upload.zip",
//	    OwnerID:    "12345",
//	})
//	if !res.Success {
//	    switch res.Err.Kind {
//	    case unzipbot.KindTooManyFiles:
//	        // ...
//	    }
//	}
//
// # Ownership
//
// The pipeline never deletes its own successful output, nor the source
// archive. Both belong to the caller once ExtractArchive returns.
package unzipbot
