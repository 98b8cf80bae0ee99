//go:build darwin && cgo

package hwsource

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework AVFoundation -framework CoreMedia -framework CoreGraphics -framework Foundation

#import <AVFoundation/AVFoundation.h>
#import <CoreMedia/CoreMedia.h>
#import <CoreGraphics/CoreGraphics.h>
#include <stdlib.h>
#include <string.h>

typedef struct {
    void *asset;      // AVURLAsset, retained
    void *generator;  // AVAssetImageGenerator, retained
    int width;
    int height;
    double fps;
    double duration;
    int32_t timescale;
} AVFGrabber;

enum {
    AVF_OK = 0,
    AVF_NO_VIDEO = 1,
    AVF_LOAD_FAILED = 2,
    AVF_GRAB_FAILED = 3,
    AVF_TIMEOUT = 4,
};

// Open an asset and configure a zero tolerance image generator. Loading the
// track and duration metadata is canceled after timeoutMs.
static int avfOpen(const char *path, int isURL, int64_t timeoutMs, AVFGrabber *g) {
    @autoreleasepool {
        NSString *str = [NSString stringWithUTF8String:path];
        NSURL *url = isURL ? [NSURL URLWithString:str] : [NSURL fileURLWithPath:str];
        if (url == nil) {
            return AVF_LOAD_FAILED;
        }

        AVURLAsset *asset = [[AVURLAsset alloc] initWithURL:url options:nil];
        // The completion block retains sem, so a late signal after a
        // timeout stays valid.
        dispatch_semaphore_t sem = dispatch_semaphore_create(0);
        [asset loadValuesAsynchronouslyForKeys:@[@"tracks", @"duration"] completionHandler:^{
            dispatch_semaphore_signal(sem);
        }];
        long waited = dispatch_semaphore_wait(sem, dispatch_time(DISPATCH_TIME_NOW, timeoutMs * NSEC_PER_MSEC));
        dispatch_release(sem);
        if (waited != 0) {
            [asset cancelLoading];
            [asset release];
            return AVF_TIMEOUT;
        }

        NSError *err = nil;
        if ([asset statusOfValueForKey:@"tracks" error:&err] != AVKeyValueStatusLoaded ||
            [asset statusOfValueForKey:@"duration" error:&err] != AVKeyValueStatusLoaded) {
            [asset release];
            return AVF_LOAD_FAILED;
        }
        NSArray *tracks = [asset tracksWithMediaType:AVMediaTypeVideo];
        if ([tracks count] == 0) {
            [asset release];
            return isURL ? AVF_LOAD_FAILED : AVF_NO_VIDEO;
        }
        AVAssetTrack *track = [tracks objectAtIndex:0];

        CGSize size = [track naturalSize];
        g->width = (int)size.width;
        g->height = (int)size.height;
        g->fps = [track nominalFrameRate];
        g->timescale = [track naturalTimeScale];
        g->duration = CMTimeGetSeconds([asset duration]);

        AVAssetImageGenerator *gen = [[AVAssetImageGenerator alloc] initWithAsset:asset];
        gen.requestedTimeToleranceBefore = kCMTimeZero;
        gen.requestedTimeToleranceAfter = kCMTimeZero;
        gen.appliesPreferredTrackTransform = NO;

        g->asset = asset;
        g->generator = gen;
    }
    return AVF_OK;
}

// Grab the picture at value/timescale seconds as packed RGB24.
static int avfGrab(AVFGrabber *g, int64_t value, int32_t timescale, unsigned char *out,
                   int64_t *actualValue, int32_t *actualScale) {
    int status = AVF_OK;
    @autoreleasepool {
        AVAssetImageGenerator *gen = (AVAssetImageGenerator *)g->generator;
        CMTime actual = kCMTimeInvalid;
        NSError *err = nil;
        CGImageRef img = [gen copyCGImageAtTime:CMTimeMake(value, timescale) actualTime:&actual error:&err];
        if (img == NULL) {
            return AVF_GRAB_FAILED;
        }

        int w = g->width;
        int h = g->height;
        unsigned char *rgba = (unsigned char *)malloc((size_t)w * h * 4);
        if (rgba == NULL) {
            CGImageRelease(img);
            return AVF_GRAB_FAILED;
        }
        CGColorSpaceRef cs = CGColorSpaceCreateDeviceRGB();
        CGContextRef ctx = CGBitmapContextCreate(rgba, w, h, 8, (size_t)w * 4, cs,
                                                 kCGImageAlphaNoneSkipLast | kCGBitmapByteOrder32Big);
        if (ctx == NULL) {
            status = AVF_GRAB_FAILED;
        } else {
            CGContextDrawImage(ctx, CGRectMake(0, 0, w, h), img);
            for (size_t i = 0; i < (size_t)w * h; i++) {
                out[i * 3 + 0] = rgba[i * 4 + 0];
                out[i * 3 + 1] = rgba[i * 4 + 1];
                out[i * 3 + 2] = rgba[i * 4 + 2];
            }
            CGContextRelease(ctx);
        }
        CGColorSpaceRelease(cs);
        free(rgba);
        CGImageRelease(img);

        *actualValue = actual.value;
        *actualScale = actual.timescale;
    }
    return status;
}

static void avfClose(AVFGrabber *g) {
    if (g->generator != NULL) {
        [(AVAssetImageGenerator *)g->generator release];
        g->generator = NULL;
    }
    if (g->asset != NULL) {
        [(AVURLAsset *)g->asset release];
        g->asset = NULL;
    }
}
*/
import "C"

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/user/framecue/pkg/ports"
	"github.com/user/framecue/pkg/timebase"
)

type avfGrabber struct {
	g    C.AVFGrabber
	meta ports.MediaInfo
}

func openGrabber(ctx context.Context, loc ports.Location, opts Options, log ports.Logger) (grabber, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := openTimeout(ctx, opts)

	// avfOpen cannot be interrupted; it is bounded by timeout, and a
	// grabber that opens after ctx is canceled is closed right away.
	type opened struct {
		a      *avfGrabber
		status C.int
	}
	result := make(chan opened, 1)
	go func() {
		cpath := C.CString(loc.Path)
		defer C.free(unsafe.Pointer(cpath))
		isURL := C.int(0)
		if loc.IsURL() {
			isURL = 1
		}
		a := &avfGrabber{}
		status := C.avfOpen(cpath, isURL, C.int64_t(timeout.Milliseconds()), &a.g)
		result <- opened{a: a, status: status}
	}()

	var res opened
	select {
	case res = <-result:
	case <-ctx.Done():
		go func() {
			if res := <-result; res.status == C.AVF_OK {
				res.a.close()
			}
		}()
		return nil, ctx.Err()
	}

	a := res.a
	switch res.status {
	case C.AVF_OK:
	case C.AVF_TIMEOUT:
		if !loc.IsURL() {
			return nil, fmt.Errorf("%w: loading %s timed out after %v", ports.ErrUnsupportedFormat, loc.Name(), timeout)
		}
		return nil, fmt.Errorf("%w: loading %s timed out after %v", ports.ErrNetwork, loc.Path, timeout)
	case C.AVF_NO_VIDEO:
		return nil, fmt.Errorf("%w: %s has no video track", ports.ErrUnsupportedFormat, loc.Name())
	default:
		if loc.IsURL() {
			return nil, fmt.Errorf("%w: cannot load %s", ports.ErrNetwork, loc.Path)
		}
		return nil, fmt.Errorf("%w: cannot load %s", ports.ErrUnsupportedFormat, loc.Name())
	}

	rate, err := timebase.FromFloat(float64(a.g.fps))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("%w: frame rate: %v", ports.ErrUnsupportedFormat, err)
	}
	if a.g.width <= 0 || a.g.height <= 0 || a.g.timescale <= 0 {
		a.close()
		return nil, fmt.Errorf("%w: %s has no picture size", ports.ErrUnsupportedFormat, loc.Name())
	}

	a.meta = ports.MediaInfo{
		Location:   loc,
		Width:      int(a.g.width),
		Height:     int(a.g.height),
		FrameRate:  rate,
		TimeBase:   timebase.R(1, int64(a.g.timescale)),
		FrameCount: timebase.TimeToFrame(float64(a.g.duration), rate),
		Codec:      "avfoundation",
		Backend:    Backend,
	}
	return a, nil
}

func (a *avfGrabber) info() ports.MediaInfo {
	return a.meta
}

func (a *avfGrabber) grab(ctx context.Context, first, count int) ([]grabbed, error) {
	rate := a.meta.FrameRate
	size := a.meta.Width * a.meta.Height * 3
	pics := make([]grabbed, 0, count)

	for n := first; n < first+count; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pix := make([]byte, size)
		var actualValue C.int64_t
		var actualScale C.int32_t
		// frame n starts at n * Den / Num seconds, exactly.
		status := C.avfGrab(&a.g,
			C.int64_t(int64(n)*rate.Den), C.int32_t(rate.Num),
			(*C.uchar)(unsafe.Pointer(&pix[0])),
			&actualValue, &actualScale)
		if status != C.AVF_OK {
			return nil, fmt.Errorf("%w: no picture at frame %d", ports.ErrFrameUnavailable, n)
		}
		actual := -1.0
		if actualScale > 0 {
			actual = float64(actualValue) / float64(actualScale)
		}
		pics = append(pics, grabbed{pix: pix, actual: actual})
	}
	return pics, nil
}

func (a *avfGrabber) close() error {
	C.avfClose(&a.g)
	return nil
}
