// Package toast sends transient notifications to the browser.
//
// Toasts ride the session's event stream as a "jobtrail:toast" event, so
// no dedicated message type is needed and the page is free to render them
// with any toast library:
//
//	// page.js
//	events.addEventListener("jobtrail:toast", (e) => {
//	    const { level, message, title } = e.detail;
//	    showToast(level, message);
//	});
//
// Server side:
//
//	if err := saver.Save(ctx, draft); err != nil {
//	    toast.Error(sess, "Failed to save listing")
//	}
package toast
