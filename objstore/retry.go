package objstore

import (
	"time"

	"github.com/swiftstack/pfsreader/logger"
	"github.com/swiftstack/pfsreader/stats"
)

// Object store requests should be retried if they fail with a retriable
// error. RetryCtrl is used to control the retry process, including
// exponential backoff on subsequent replay attempts. lastReq tracks the time
// that the last request was made so that time consumed by the request can be
// subtracted from the backoff amount (if a request takes 30 sec to timeout
// and the initial delay is 10 sec, we don't want 40 sec between requests).
//
type RetryCtrl struct {
	attemptMax uint          // maximum attempts
	attemptCnt uint          // number of attempts
	delay      time.Duration // backoff amount (grows each attempt)
	expBackoff float64       // factor to increase delay by
	firstReq   time.Time     // first request start time
	lastReq    time.Time     // most recent request start time
}

type RetryStatNm struct {
	retryCnt        *string // increment stat for each operation that is retried (not each retry)
	retrySuccessCnt *string // increment this for each operation where retry fixed the problem
}

func NewRetryCtrl(maxAttempt uint16, delay time.Duration, expBackoff float64) RetryCtrl {
	var ctrl = RetryCtrl{attemptCnt: 0, attemptMax: uint(maxAttempt), delay: delay, expBackoff: expBackoff}
	ctrl.firstReq = time.Now()
	ctrl.lastReq = ctrl.firstReq

	return ctrl
}

// Wait until ctrl.delay has elapsed since the last request started and then
// update the delay with the exponential backoff and record when the next
// request was started
//
func (ctrl *RetryCtrl) RetryWait() {
	var delay time.Duration = time.Now().Sub(ctrl.lastReq)

	if ctrl.delay > delay {
		time.Sleep(ctrl.delay - delay)
	}
	ctrl.delay = time.Duration(float64(ctrl.delay) * ctrl.expBackoff)

	ctrl.lastReq = time.Now()
	return
}

// Perform a request until it succeeds, it fails with an unretriable error, or
// we hit the maximum retries. doRequest() will issue the request and return
// both an error indication and a boolean indicating whether the error is
// retriable or not (if there is an error).
//
// if a request fails, even if ctrl.attemptMax == 0 (retry disabled) this will
// still log an Error message indicating RequestWithRetry() failed along with
// the operation identifier (name and parameters)
//
func (ctrl *RetryCtrl) RequestWithRetry(doRequest func() (bool, error), opid *string, statnm *RetryStatNm) (err error) {
	var (
		lastErr   error
		retriable bool
	)

	retriable, lastErr = doRequest()
	if lastErr == nil {
		return nil
	}

	// doRequest(), above, counts as the first attempt though its not a
	// retry, which is why this loop goes upto ctrl.attemptMax (consider
	// ctrl.attemptMax == 0 and ctrl.attemptMax == 1 cases)
	for ctrl.attemptCnt = 1; retriable && ctrl.attemptCnt <= ctrl.attemptMax; ctrl.attemptCnt++ {
		if ctrl.attemptCnt == 1 {
			stats.IncrementOperations(statnm.retryCnt)
		}
		ctrl.RetryWait()

		retriable, lastErr = doRequest()
		if lastErr == nil {
			stats.IncrementOperations(statnm.retrySuccessCnt)
			logger.Infof("retry.RequestWithRetry(): %s succeeded after %d attempts",
				*opid, ctrl.attemptCnt)
			return nil
		}
	}
	// lastErr != nil

	if !retriable {
		logger.ErrorfWithError(lastErr, "retry.RequestWithRetry(): %s unretriable after %d attempts",
			*opid, ctrl.attemptCnt)
		return lastErr
	}
	logger.ErrorfWithError(lastErr, "retry.RequestWithRetry(): %s failed after %d attempts", *opid, ctrl.attemptCnt)
	return lastErr
}
